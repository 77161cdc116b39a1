package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// KafkaProducer writes messages with the message key as the partition key, so
// all events of one aggregate land on the same partition in order.
type KafkaProducer struct {
	brokers []string
	writer  *kafka.Writer
}

var _ Producer = (*KafkaProducer)(nil)

func NewKafkaProducer(brokers []string) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers cannot be empty")
	}

	return &KafkaProducer{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

func (p *KafkaProducer) WriteMessages(ctx context.Context, messages ...Message) error {
	kafkaMessages := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("validating message %s before write: %w", msg, err)
		}

		msgJSON, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshalling message %s: %w", msg, err)
		}

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Topic: msg.Topic,
			Key:   []byte(msg.Key),
			Value: msgJSON,
		})
	}

	if err := p.writer.WriteMessages(ctx, kafkaMessages...); err != nil {
		return fmt.Errorf("writing messages on kafka: %w", err)
	}

	return nil
}

// Ping dials the first broker to verify connectivity, used by health checks.
func (p *KafkaProducer) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dialing kafka broker %s: %w", p.brokers[0], err)
	}
	defer conn.Close()

	if _, err = conn.Brokers(); err != nil {
		return fmt.Errorf("listing kafka brokers: %w", err)
	}
	return nil
}

func (p *KafkaProducer) BrokerType() EventBrokerType {
	return KafkaEventBrokerType
}

func (p *KafkaProducer) Close(ctx context.Context) {
	log.Ctx(ctx).Info("closing kafka producer...")
	if err := p.writer.Close(); err != nil {
		log.Ctx(ctx).Errorf("closing kafka producer: %s", err.Error())
	}
}

// KafkaConsumer reads one topic with a consumer group. Messages are committed
// on read; retry of failed handling happens in-process through the
// ConsumerBackoffManager, and an interrupted retry is replayed to the topic on
// shutdown.
type KafkaConsumer struct {
	topic    string
	handlers []EventHandler
	reader   *kafka.Reader
}

var _ Consumer = (*KafkaConsumer)(nil)

func NewKafkaConsumer(brokers []string, topic string, consumerGroupID string, handlers ...EventHandler) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers cannot be empty")
	}
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}
	if consumerGroupID == "" {
		return nil, errors.New("consumer group ID cannot be empty")
	}

	k := KafkaConsumer{
		topic: topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: consumerGroupID,
			Topic:   topic,
		}),
	}

	if err := k.RegisterEventHandler(context.Background(), handlers...); err != nil {
		return nil, fmt.Errorf("registering event handlers: %w", err)
	}

	return &k, nil
}

func (c *KafkaConsumer) RegisterEventHandler(ctx context.Context, handlers ...EventHandler) error {
	if len(handlers) == 0 {
		return errors.New("handlers cannot be empty")
	}

	for _, handler := range handlers {
		log.Ctx(ctx).Infof("registering event handler %s for topic %s", handler.Name(), c.topic)
		c.handlers = append(c.handlers, handler)
	}
	return nil
}

func (c *KafkaConsumer) ReadMessage(ctx context.Context) (*Message, error) {
	kafkaMessage, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching message from kafka: %w", err)
	}

	var msg Message
	if err = json.Unmarshal(kafkaMessage.Value, &msg); err != nil {
		return nil, fmt.Errorf("unmarshaling message: %w", err)
	}

	// Commit before handling. A crash mid-handling loses the in-process retry
	// state but finalizeConsumer replays the message on orderly shutdown, and
	// handlers are idempotent either way.
	if err = c.reader.CommitMessages(ctx, kafkaMessage); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	log.Ctx(ctx).Infof("new message being processed: %s", msg.String())
	return &msg, nil
}

func (c *KafkaConsumer) Topic() string {
	return c.topic
}

func (c *KafkaConsumer) Handlers() []EventHandler {
	return c.handlers
}

func (c *KafkaConsumer) BrokerType() EventBrokerType {
	return KafkaEventBrokerType
}

func (c *KafkaConsumer) Close() error {
	log.Info("closing kafka consumer...")
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}
