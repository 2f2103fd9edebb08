package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/siherrmann/narrative/model"
)

// KafkaAlertBus publishes alerts to a Kafka topic and waits for the broker
// delivery report. Messages are keyed by narrative so consumers see the
// alerts of one narrative in order.
type KafkaAlertBus struct {
	producer *kafka.Producer
	topic    string
	log      *slog.Logger
}

// NewKafkaAlertBus connects a producer to the given brokers.
func NewKafkaAlertBus(brokers string, topic string, logger *slog.Logger) (*KafkaAlertBus, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
		"retries":           5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	// Drain producer events so delivery failures surface in the log
	go func() {
		for event := range producer.Events() {
			switch ev := event.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Error("Alert delivery failed", slog.String("partition", ev.TopicPartition.String()), slog.String("error", ev.TopicPartition.Error.Error()))
				}
			case kafka.Error:
				logger.Error("Kafka producer error", slog.String("error", ev.Error()))
			}
		}
	}()

	return &KafkaAlertBus{
		producer: producer,
		topic:    topic,
		log:      logger,
	}, nil
}

// Publish sends one alert and waits for its delivery report.
func (b *KafkaAlertBus) Publish(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)

	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &b.topic, Partition: kafka.PartitionAny},
		Key:            []byte(alert.NarrativeRID.String()),
		Value:          data,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	return awaitDelivery(ctx, deliveryChan)
}

// awaitDelivery waits for the delivery report of one produced message.
// On cancellation the buffered channel is abandoned, never closed: the
// producer still sends the late report into it, and a send on a closed
// channel would panic inside the producer's dispatch goroutine.
func awaitDelivery(ctx context.Context, deliveryChan chan kafka.Event) error {
	select {
	case event := <-deliveryChan:
		message, ok := event.(*kafka.Message)
		if !ok {
			return fmt.Errorf("failed to deliver alert: unexpected event %v", event)
		}
		if message.TopicPartition.Error != nil {
			return fmt.Errorf("failed to deliver alert: %w", message.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and shuts the producer down.
func (b *KafkaAlertBus) Close() {
	if b.producer == nil {
		return
	}
	if remaining := b.producer.Flush(5000); remaining > 0 {
		b.log.Warn("Unflushed alerts on close", slog.Int("remaining", remaining))
	}
	b.producer.Close()
}
