package domain

import "context"

// CatalogStore описывает чтение товаров; складские счётчики мутирует только
// OrderStore внутри своих критических секций.
type CatalogStore interface {
	// GetProduct возвращает товар со всеми вариантами или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
}

// CouponStore описывает чтение купонов.
type CouponStore interface {
	// GetActiveByCode возвращает не удалённый купон по коду или ErrCouponNotFound.
	GetActiveByCode(ctx context.Context, code string) (Coupon, error)
}

// CancelGuard вызывается внутри критической секции отмены: заказ уже
// загружен и заблокирован, но компенсация ещё не применялась. Возврат ошибки
// отменяет всю операцию без каких-либо изменений.
type CancelGuard func(Order) error

// RestockReport описывает фактически применённую компенсацию.
type RestockReport struct {
	// MissingVariants — товары, чей вариант из снапшота не найден;
	// инкремент варианта пропущен, счётчики товара скорректированы.
	MissingVariants []string
}

// EventFactory строит outbox-события для заказа. Хранилище вызывает её
// внутри своей критической секции с финальным состоянием заказа и сохраняет
// сообщения той же атомарной единицей, что и складские мутации. nil означает
// «событий нет».
type EventFactory func(Order) []OutboxMessage

// OrderStore — транзакционное хранилище заказов. Commit и Cancel обязаны
// быть атомарными: либо применяются все мутации (заказ, позиции, остатки,
// sold, used_count купона, outbox-события), либо ни одна.
type OrderStore interface {
	// Commit персистит план как новый pending-заказ, списывает остатки
	// условными декрементами и кладёт события events в outbox. Конкурентное
	// исчерпание пула между валидацией и коммитом возвращает
	// ErrInsufficientStock без следов.
	Commit(ctx context.Context, plan OrderPlan, events EventFactory) (Order, error)

	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)

	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)

	// Cancel атомарно компенсирует складские движения заказа и переводит
	// его в cancelled. Проверка «уже отменён» выполняется под той же
	// критической секцией, что и смена статуса: повторная отмена возвращает
	// ErrAlreadyCancelled и не трогает остатки. guard выполняется там же,
	// события events сохраняются той же атомарной единицей.
	// softDelete дополнительно помечает заказ удалённым.
	Cancel(ctx context.Context, orderID string, guard CancelGuard, softDelete bool, events EventFactory) (Order, RestockReport, error)
}
