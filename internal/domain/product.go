package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColorVariant — цветовой вариант товара со своим собственным счётчиком остатка.
type ColorVariant struct {
	ID string
	// Name — отображаемое имя цвета ("Red").
	Name string
	// Code — машинный код цвета; может быть пустым.
	Code string
	// Quantity — остаток именно этого варианта.
	Quantity int64
}

// Product агрегирует товар каталога вместе с его вариантами.
// Базовый счётчик Quantity авторитетен только при отсутствии вариантов.
type Product struct {
	ID   string
	Name string
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// DiscountMinor — каталожная скидка; движок её не изменяет.
	DiscountMinor int64
	// Quantity — базовый пул остатка (только для товаров без вариантов).
	Quantity int64
	// Sold — суммарный счётчик проданных единиц.
	Sold int64
	// Variants перечислены в каталожном порядке; матчинг идёт по первому совпадению.
	Variants []ColorVariant
}

// ColorSelector — нормализованный выбор цвета из запроса или снапшота позиции.
// Нулевое значение означает "цвет не выбран".
type ColorSelector struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// IsZero сообщает, что селектор пуст и не может адресовать вариант.
func (s ColorSelector) IsZero() bool {
	return s.Name == "" && s.Code == ""
}

func (s ColorSelector) String() string {
	if s.Code != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.Code)
	}
	return s.Name
}

// ParseColorSelector декодирует «сырое» значение селектора.
// Строка вида {"name":...,"code":...} разбирается как JSON; любая другая
// непустая строка трактуется как голое имя цвета с пустым кодом.
func ParseColorSelector(raw string) ColorSelector {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ColorSelector{}
	}

	var sel ColorSelector
	if err := json.Unmarshal([]byte(raw), &sel); err == nil {
		return sel
	}
	return ColorSelector{Name: raw}
}

// StockPool — разрешённый счётчик остатка, управляющий позицией заказа.
// Пустой VariantID означает базовый счётчик товара.
type StockPool struct {
	ProductID   string
	VariantID   string
	VariantName string
	VariantCode string
	// Available — остаток пула на момент разрешения.
	Available int64
}

// IsBase сообщает, указывает ли пул на базовый счётчик товара.
func (p StockPool) IsBase() bool {
	return p.VariantID == ""
}

// StockPoolKey идентифицирует пул при агрегации спроса по позициям заказа.
type StockPoolKey struct {
	ProductID string
	VariantID string
}

// Key возвращает ключ пула: несколько позиций одного пула должны проверяться
// против остатка суммарно, а не по отдельности.
func (p StockPool) Key() StockPoolKey {
	return StockPoolKey{ProductID: p.ProductID, VariantID: p.VariantID}
}

// ResolvePool выбирает счётчик остатка для селектора.
// Правила, в порядке применения:
//  1. если у товара есть варианты — селектор обязателен, иначе ErrColorRequired;
//  2. вариант совпадает, когда непустой код селектора равен коду варианта
//     ИЛИ непустое имя селектора равно имени варианта (нестрогий OR-матчинг);
//  3. без совпадений — ErrVariantNotFound;
//  4. без вариантов селектор игнорируется и управляет базовый счётчик.
func (p Product) ResolvePool(sel ColorSelector) (StockPool, error) {
	if len(p.Variants) == 0 {
		return StockPool{ProductID: p.ID, Available: p.Quantity}, nil
	}

	if sel.IsZero() {
		return StockPool{}, fmt.Errorf("%w: product %q", ErrColorRequired, p.ID)
	}

	for _, v := range p.Variants {
		if matchVariant(v, sel) {
			return StockPool{
				ProductID:   p.ID,
				VariantID:   v.ID,
				VariantName: v.Name,
				VariantCode: v.Code,
				Available:   v.Quantity,
			}, nil
		}
	}

	return StockPool{}, fmt.Errorf("%w: product %q, selector %q", ErrVariantNotFound, p.ID, sel.String())
}

// ResolvePoolLenient — щадящий вариант для компенсации по снапшоту позиции.
// Исчезнувший вариант не фатален: возвращается пул базового товара и ok=false,
// чтобы вызывающий пропустил инкремент варианта, но скорректировал счётчики
// самого товара.
func (p Product) ResolvePoolLenient(sel ColorSelector) (StockPool, bool) {
	if len(p.Variants) == 0 {
		return StockPool{ProductID: p.ID, Available: p.Quantity}, true
	}

	if !sel.IsZero() {
		for _, v := range p.Variants {
			if matchVariant(v, sel) {
				return StockPool{
					ProductID:   p.ID,
					VariantID:   v.ID,
					VariantName: v.Name,
					VariantCode: v.Code,
					Available:   v.Quantity,
				}, true
			}
		}
	}

	return StockPool{ProductID: p.ID}, false
}

// matchVariant реализует нестрогий матчинг: код проверяется первым, но решить
// совпадение может любое из двух полей.
func matchVariant(v ColorVariant, sel ColorSelector) bool {
	if sel.Code != "" && v.Code == sel.Code {
		return true
	}
	return sel.Name != "" && v.Name == sel.Name
}
