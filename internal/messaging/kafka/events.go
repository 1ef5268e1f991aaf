package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// Topics для Kafka
const (
	TopicPurchaseOrderEvents = "procurement.purchase-order.events"
	TopicSupplierEvents      = "procurement.supplier.events"
	TopicInventoryEvents     = "procurement.inventory.events"
	TopicDeadLetterQueue     = "procurement.dlq" // Dead Letter Queue для сообщений, исчерпавших retry
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// Envelope: JSON-конверт, в котором outbox-сообщение уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение. Пустой payload публикуется как null.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}

// TopicFor выбирает topic по типу агрегата.
func TopicFor(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateSupplier:
		return TopicSupplierEvents
	case domain.AggregateArticle:
		return TopicInventoryEvents
	default:
		return TopicPurchaseOrderEvents
	}
}
