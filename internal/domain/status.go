package domain

import (
	"time"
)

// StatusName описывает жизненный цикл заказа на закупку.
//
//	Pendiente ──┬──> Enviada ──> Finalizada
//	            └──> Cancelada
//
// Finalizada и Cancelada являются терминальными статусами.
type StatusName string

const (
	// StatusPending: заказ создан и ещё не отправлен поставщику.
	StatusPending StatusName = "Pendiente"
	// StatusSent: заказ отправлен поставщику.
	StatusSent StatusName = "Enviada"
	// StatusFinalized: товар получен, склад пополнен.
	StatusFinalized StatusName = "Finalizada"
	// StatusCanceled: заказ отменён до отправки.
	StatusCanceled StatusName = "Cancelada"
)

// transitions: таблица допустимых переходов. Отсутствие ключа означает терминальный или неизвестный статус.
var transitions = map[StatusName][]StatusName{
	StatusPending: {StatusSent, StatusCanceled},
	StatusSent:    {StatusFinalized},
}

// AllStatuses возвращает все допустимые имена статусов в порядке жизненного цикла.
func AllStatuses() []StatusName {
	return []StatusName{StatusPending, StatusSent, StatusFinalized, StatusCanceled}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s StatusName) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFinalized, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s StatusName) IsTerminal() bool {
	return s == StatusFinalized || s == StatusCanceled
}

// IsOpen сообщает, что заказ ещё в работе (блокирует вывод поставщика).
func (s StatusName) IsOpen() bool {
	return s == StatusPending || s == StatusSent
}

func (s StatusName) String() string {
	return string(s)
}

// ValidTargets возвращает допустимые целевые статусы. Для терминальных и неизвестных статусов возвращается пустой срез.
func ValidTargets(current StatusName) []StatusName {
	targets := transitions[current]
	result := make([]StatusName, len(targets))
	copy(result, targets)
	return result
}

// CanTransition проверяет наличие перехода from -> to в таблице.
func CanTransition(from, to StatusName) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// OrderStatus: запись истории статусов заказа. Записи не изменяются,
// только закрываются установкой DeactivatedAt.
type OrderStatus struct {
	ID            string
	OrderID       string
	Name          StatusName
	ActivatedAt   time.Time
	DeactivatedAt *time.Time
}

// IsActive сообщает, что запись ещё не закрыта.
func (s OrderStatus) IsActive() bool {
	return s.DeactivatedAt == nil
}

// Close возвращает копию записи, закрытую моментом t.
func (s OrderStatus) Close(t time.Time) OrderStatus {
	closed := s
	closed.DeactivatedAt = &t
	return closed
}

// CurrentStatus выбирает текущий статус среди записей заказа.
// Если активных записей несколько (аномалия данных), побеждает запись с самым поздним ActivatedAt,
// при равенстве побеждает запись с большим ID.
func CurrentStatus(records []OrderStatus) (OrderStatus, bool) {
	var (
		current OrderStatus
		found   bool
	)
	for _, rec := range records {
		if !rec.IsActive() {
			continue
		}
		if !found ||
			rec.ActivatedAt.After(current.ActivatedAt) ||
			(rec.ActivatedAt.Equal(current.ActivatedAt) && rec.ID > current.ID) {
			current = rec
			found = true
		}
	}
	return current, found
}
