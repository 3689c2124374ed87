package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/obs"
)

// DefaultTopic is the shared status channel all events are published on.
// Consumers filter by order id.
const DefaultTopic = "order-status"

// KafkaPublisher publishes status events to a Kafka topic so workers and
// gateways can run in separate processes.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *obs.Metrics
}

// NewKafkaPublisher connects a synchronous producer with full-ack delivery.
func NewKafkaPublisher(brokers []string, topic string, metrics *obs.Metrics) (*KafkaPublisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect kafka producer")
	}
	return &KafkaPublisher{producer: producer, topic: topic, metrics: metrics}, nil
}

// Publish sends the event keyed by order id, preserving per-order ordering.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.StatusEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal status event")
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		p.metrics.PublishFailed()
		return errors.Wrap(err, "send status event")
	}
	p.metrics.EventPublished()
	return nil
}

// Close shuts down the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// statusReader is the slice of kafka.Reader the subscriber consumes.
type statusReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSubscriber bridges the status topic into an in-process handler,
// typically the subscriber gateway's deliver function.
type KafkaSubscriber struct {
	reader     statusReader
	retryDelay time.Duration
}

// NewKafkaSubscriber creates a consumer-group reader on the status topic.
func NewKafkaSubscriber(brokers []string, groupID, topic string) *KafkaSubscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		retryDelay: time.Second,
	}
}

// Run reads events until the context is done. The stream is best-effort:
// malformed messages are skipped, and read errors are logged and retried
// after a pause rather than killing the bridge while websocket clients
// are still connected.
func (s *KafkaSubscriber) Run(ctx context.Context, handler func(model.StatusEvent)) {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Errorf("read status event: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}
		var event model.StatusEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logs.Errorf("unmarshal status event: %v", err)
			continue
		}
		handler(event)
	}
}

// Close shuts down the reader.
func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}
