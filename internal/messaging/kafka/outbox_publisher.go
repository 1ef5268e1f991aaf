package kafka

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Пустой topic означает маршрутизацию по типу агрегата (TopicFor).
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := p.topic
	if topic == "" {
		topic = TopicFor(event.AggregateType)
	}

	return p.producer.PublishEvent(topic, key, NewEnvelope(event), map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
