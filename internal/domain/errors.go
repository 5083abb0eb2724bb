package domain

import "errors"

var (
	// ErrColorRequired — у товара есть цветовые варианты, но селектор цвета не передан.
	ErrColorRequired = errors.New("color selection is required for this product")
	// ErrVariantNotFound — селектор передан, но ни один вариант не совпал ни по коду, ни по имени.
	ErrVariantNotFound = errors.New("color variant not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток в пуле.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCouponNotFound — активный купон с таким кодом не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExpired — срок действия купона истёк.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponExhausted — лимит использований купона исчерпан.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponMinimumNotMet — сумма заказа меньше минимального порога купона.
	ErrCouponMinimumNotMet = errors.New("order subtotal is below coupon minimum")
	// ErrInvalidStateTransition — операция недопустима для текущего статуса заказа.
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	// ErrAlreadyCancelled — заказ уже отменён; повторная отмена не выполняется.
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	// ErrForbidden — актор не владеет заказом и не имеет админских прав.
	ErrForbidden = errors.New("actor is not allowed to modify this order")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPersistence — хранилище недоступно или отклонило операцию не по бизнес-причине.
	ErrPersistence = errors.New("persistence error")

	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrLineTotalMismatch = errors.New("order subtotal does not match lines sum")
	// Ошибка отрицательного итога заказа.
	ErrAmountNegative = errors.New("order total must be non-negative")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — записи с таким ключом нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят другим запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ, но другое тело запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is used with different request payload")
)

// IsStockConflict проверяет, является ли ошибка конфликтом остатков.
func IsStockConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
