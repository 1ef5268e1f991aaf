package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicSupplierEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			t.Errorf("unexpected headers %+v", msg.Headers)
		}
		return nil
	})

	event := map[string]interface{}{"supplier_id": "prov-1"}
	err := producer.PublishEvent(TopicSupplierEvents, "prov-1", event, map[string]string{
		HeaderEventType: domain.EventSupplierRetired,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicPurchaseOrderEvents, "oc-1", map[string]string{"status": "Enviada"}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := &Producer{
		producer: mocks.NewSyncProducer(t, nil),
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	if err := producer.PublishEvent(TopicPurchaseOrderEvents, "oc-1", make(chan int), nil); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestNewEnvelope(t *testing.T) {
	msg := domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregatePurchaseOrder,
		AggregateID:   "oc-1",
		EventType:     domain.EventStatusChanged,
		Payload:       []byte(`{"to":"Enviada"}`),
	}

	env := NewEnvelope(msg)
	if env.AggregateID != "oc-1" || env.EventType != domain.EventStatusChanged {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if time.Since(env.PublishedAt) > time.Second {
		t.Error("published_at should be close to current time")
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	payload, ok := decoded["payload"].(map[string]any)
	if !ok || payload["to"] != "Enviada" {
		t.Fatalf("payload should be embedded as json object: %v", decoded["payload"])
	}

	empty := NewEnvelope(domain.OutboxMessage{ID: "outbox-2"})
	if string(empty.Payload) != "null" {
		t.Fatalf("empty payload should be null, got %s", empty.Payload)
	}
}

func TestTopicFor(t *testing.T) {
	tests := map[string]string{
		domain.AggregatePurchaseOrder: TopicPurchaseOrderEvents,
		domain.AggregateSupplier:      TopicSupplierEvents,
		domain.AggregateArticle:       TopicInventoryEvents,
		"unknown":                     TopicPurchaseOrderEvents,
	}
	for aggregate, want := range tests {
		if got := TopicFor(aggregate); got != want {
			t.Errorf("TopicFor(%q) = %s, want %s", aggregate, got, want)
		}
	}
}
