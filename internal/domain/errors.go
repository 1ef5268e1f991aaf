package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition: запрошенная смена статуса не разрешена из текущего состояния.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrIncompleteOrderData: у заказа нет артикула или закупленного количества.
	ErrIncompleteOrderData = errors.New("purchase order has no article or purchased quantity")
	// ErrArticleNotFound возвращается, если артикул не найден в хранилище.
	ErrArticleNotFound = errors.New("article not found")
	// ErrDefaultSupplierInUse: поставщик назначен поставщиком по умолчанию у активного артикула.
	ErrDefaultSupplierInUse = errors.New("supplier is the default supplier of an active article")
	// ErrOpenOrderExists: у поставщика есть заказ в статусе Pendiente или Enviada.
	ErrOpenOrderExists = errors.New("supplier has a pending or sent purchase order")
	// ErrStoreUnavailable: общая ошибка хранилища (недоступность, таймаут).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("purchase order not found")
	// ErrSupplierNotFound возвращается, если поставщик не найден.
	ErrSupplierNotFound = errors.New("supplier not found")
	// ErrSupplierRetired: поставщик уже выведен из оборота.
	ErrSupplierRetired = errors.New("supplier already retired")
	// ErrStatusConflict: активный статус изменился между чтением и записью.
	ErrStatusConflict = errors.New("active order status changed concurrently")
	// ErrActiveStatusExists: попытка добавить второй активный статус заказу.
	ErrActiveStatusExists = errors.New("order already has an active status")
	// ErrStatusNameInvalid: имя статуса не входит в допустимый набор.
	ErrStatusNameInvalid = errors.New("status name is invalid")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// TransitionError описывает отклонённую смену статуса с указанием исходного и целевого статусов.
type TransitionError struct {
	OrderID    string
	From       StatusName
	To         StatusName
	HasCurrent bool
}

func (e *TransitionError) Error() string {
	if !e.HasCurrent {
		return fmt.Sprintf("purchase order %s has no active status, cannot change to %q", e.OrderID, e.To)
	}
	if e.From.IsTerminal() {
		return fmt.Sprintf("purchase order %s is %q, a terminal status; cannot change to %q", e.OrderID, e.From, e.To)
	}
	return fmt.Sprintf("cannot change purchase order %s from %q to %q", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RetirementError описывает отказ в выводе поставщика и правило, которое сработало.
type RetirementError struct {
	SupplierID string
	// Reason: ErrDefaultSupplierInUse или ErrOpenOrderExists.
	Reason    error
	ArticleID string
	OrderID   string
}

func (e *RetirementError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrDefaultSupplierInUse):
		return fmt.Sprintf("supplier %s cannot be retired: default supplier of article %s", e.SupplierID, e.ArticleID)
	case errors.Is(e.Reason, ErrOpenOrderExists):
		return fmt.Sprintf("supplier %s cannot be retired: purchase order %s is pending or sent", e.SupplierID, e.OrderID)
	default:
		return fmt.Sprintf("supplier %s cannot be retired: %v", e.SupplierID, e.Reason)
	}
}

func (e *RetirementError) Unwrap() error {
	return e.Reason
}

// FinalizationError сигнализирует о частичном успехе: статус Finalizada уже записан,
// а обновление склада не выполнено и требует ручного разбора.
type FinalizationError struct {
	OrderID string
	Err     error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("purchase order %s finalized but inventory was not updated: %v", e.OrderID, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}

// IsInvalidTransition проверяет, является ли ошибка отказом в смене статуса.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsRetirementRefused проверяет, что вывод поставщика отклонён одним из правил.
func IsRetirementRefused(err error) bool {
	return errors.Is(err, ErrDefaultSupplierInUse) || errors.Is(err, ErrOpenOrderExists)
}

// IsStoreUnavailable проверяет, что ошибка пришла из инфраструктуры хранилища.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsPartialSuccess проверяет, что статус записан, но финализация склада не выполнена.
func IsPartialSuccess(err error) bool {
	var finErr *FinalizationError
	return errors.As(err, &finErr)
}

// StoreError оборачивает инфраструктурную ошибку в ErrStoreUnavailable с именем операции.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Машинные коды ошибок, которые транспорты отдают клиентам.
const (
	CodeInvalidTransition    = "invalid_transition"
	CodeIncompleteOrderData  = "incomplete_order_data"
	CodeArticleNotFound      = "article_not_found"
	CodeDefaultSupplierInUse = "default_supplier_in_use"
	CodeOpenOrderExists      = "open_order_exists"
	CodeStatusConflict       = "status_conflict"
	CodeSupplierRetired      = "supplier_retired"
	CodeNotFound             = "not_found"
	CodeStoreUnavailable     = "store_unavailable"
	CodeInternal             = "internal"
)

// ErrorCode возвращает код правила, из-за которого операция отклонена.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrDefaultSupplierInUse):
		return CodeDefaultSupplierInUse
	case errors.Is(err, ErrOpenOrderExists):
		return CodeOpenOrderExists
	case errors.Is(err, ErrStatusConflict), errors.Is(err, ErrActiveStatusExists):
		return CodeStatusConflict
	case errors.Is(err, ErrSupplierRetired):
		return CodeSupplierRetired
	case errors.Is(err, ErrIncompleteOrderData):
		return CodeIncompleteOrderData
	case errors.Is(err, ErrArticleNotFound):
		return CodeArticleNotFound
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrSupplierNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}
