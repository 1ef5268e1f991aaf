package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrUnknownAggregate: событие относится к агрегату, которого нет в модели закупок.
var ErrUnknownAggregate = errors.New("unknown aggregate type")

// DeadLetter: событие закупок, которое не удалось опубликовать за все попытки.
// В DLQ уходит как payload outbox-сообщения; cmd/dlq-reprocess читает его обратно.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// KnownAggregate сообщает, публикуются ли события агрегата через outbox.
func KnownAggregate(aggregateType string) bool {
	switch aggregateType {
	case domain.AggregatePurchaseOrder, domain.AggregateSupplier, domain.AggregateArticle:
		return true
	default:
		return false
	}
}

func newDeadLetter(event domain.OutboxMessage, attempts int, publishErr error, failedAt time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		Attempts:      attempts,
		FailedAt:      failedAt.UTC(),
	}
	if len(letter.Payload) == 0 {
		letter.Payload = json.RawMessage("null")
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	return letter
}

// Message упаковывает запись для DLQ-паблишера с теми же ключом и типом события.
func (d DeadLetter) Message() (domain.OutboxMessage, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", d.OutboxID, err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       payload,
	}, nil
}

// Original восстанавливает исходное outbox-сообщение для повторной публикации.
func (d DeadLetter) Original() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

// DecodeDeadLetter разбирает запись DLQ и проверяет, что её можно переиграть.
func DecodeDeadLetter(data []byte) (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(data, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if !KnownAggregate(letter.AggregateType) {
		return DeadLetter{}, fmt.Errorf("dead letter %s: %w %q", letter.OutboxID, ErrUnknownAggregate, letter.AggregateType)
	}
	if letter.OutboxID == "" || letter.EventType == "" {
		return DeadLetter{}, fmt.Errorf("dead letter of %s %s has no outbox id or event type", letter.AggregateType, letter.AggregateID)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return DeadLetter{}, fmt.Errorf("dead letter %s has no original payload", letter.OutboxID)
	}
	return letter, nil
}
