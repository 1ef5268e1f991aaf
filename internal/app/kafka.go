package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/procurement/internal/service/outbox"
	"github.com/vladislavdragonenkov/procurement/internal/version"
)

// initKafkaProducer создаёт Kafka producer, если список брокеров не пуст.
// Возвращает nil, nil при пустом списке.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, version.ClientID())
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOutboxPublishers выбирает publisher для outbox worker: Kafka с DLQ-топиком
// или логирующий publisher без DLQ, если брокер не настроен.
func newOutboxPublishers(producer *kafka.Producer, logger *log.Entry) (publisher, dlq domain.OutboxPublisher) {
	if producer == nil {
		return outbox.NewLogPublisher(logger.WithField("publisher", "log")), nil
	}
	return kafka.NewOutboxPublisher(producer, ""), kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}
