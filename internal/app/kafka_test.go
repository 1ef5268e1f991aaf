package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/procurement/internal/service/outbox"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, log.WithField("test", "kafka"))
	require.NoError(t, err)
	assert.Nil(t, producer)
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	producer, err := initKafkaProducer([]string{"127.0.0.1:1"}, log.WithField("test", "kafka"))
	require.Error(t, err)
	assert.Nil(t, producer)
}

func TestCloseKafka_NilProducer(t *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}

func TestNewOutboxPublishers_WithoutKafka(t *testing.T) {
	publisher, dlq := newOutboxPublishers(nil, log.WithField("test", "kafka"))

	assert.IsType(t, &outbox.LogPublisher{}, publisher)
	assert.Nil(t, dlq)
}
