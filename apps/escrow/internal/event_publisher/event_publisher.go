package event_publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/events"
	"escrow/apps/escrow/internal/model"
)

// EventPublisher pushes transaction lifecycle events to Kafka so downstream
// consumers (notifications, activity feeds) can follow claim/revoke/disown
// activity without polling the API.
type EventPublisher struct {
	logger        *zap.Logger
	kafkaProducer *kafka.Producer
	kafkaTopic    string
}

func NewEventPublisher(kafkaBroker, kafkaTopic string, logger *zap.Logger) (*EventPublisher, error) {
	// Setup Kafka producer
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &EventPublisher{
		logger:        logger,
		kafkaProducer: producer,
		kafkaTopic:    kafkaTopic,
	}, nil
}

// PublishStatusChange emits an event for a transaction entering a new state.
func (ep *EventPublisher) PublishStatusChange(tx model.TrackedTransaction, status string) error {
	event := events.TransactionEvent{
		EventType:     "transaction_" + status,
		TxID:          tx.ID,
		Action:        tx.Action,
		EscrowAddress: tx.EscrowAddress,
		WalletAddress: tx.WalletAddress,
		Status:        status,
		Timestamp:     time.Now(),
	}
	if tx.TxHash != nil {
		event.TxHash = *tx.TxHash
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Publish to Kafka
	deliveryChan := make(chan kafka.Event)
	defer close(deliveryChan)

	err = ep.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(tx.EscrowAddress), // partition by escrow for per-escrow ordering
		Value:          msgBytes,
	}, deliveryChan)

	if err != nil {
		return err
	}

	// Wait for delivery confirmation
	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	if ep.kafkaProducer != nil {
		ep.kafkaProducer.Close()
	}
	return nil
}
