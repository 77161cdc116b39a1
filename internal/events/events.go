package events

import (
	"context"
	"fmt"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

type Producer interface {
	WriteMessages(ctx context.Context, messages ...Message) error
	Ping(ctx context.Context) error
	BrokerType() EventBrokerType
	Close(ctx context.Context)
}

type Consumer interface {
	ReadMessage(ctx context.Context) (*Message, error)
	Topic() string
	Handlers() []EventHandler
	RegisterEventHandler(ctx context.Context, handlers ...EventHandler) error
	BrokerType() EventBrokerType
	Close() error
}

// ProduceEvents validates and writes the messages through the producer. A nil
// producer logs and drops the messages instead of failing the caller.
func ProduceEvents(ctx context.Context, producer Producer, messages ...*Message) error {
	if producer == nil {
		log.Ctx(ctx).Errorf("event producer is nil, could not publish messages %+v", messages)
		return nil
	}

	msgs := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("validating message %s: %w", msg, err)
		}
		msgs = append(msgs, *msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := producer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing messages %+v on event producer: %w", msgs, err)
	}

	return nil
}

// NoneProducer logs messages instead of sending them to a real broker, for
// environments running without Kafka.
type NoneProducer struct{}

func (p NoneProducer) WriteMessages(ctx context.Context, messages ...Message) error {
	log.Ctx(ctx).Debugf("NoneProducer: discarding messages: %+v", messages)
	return nil
}

func (p NoneProducer) Ping(ctx context.Context) error {
	return nil
}

func (p NoneProducer) BrokerType() EventBrokerType {
	return NoneEventBrokerType
}

func (p NoneProducer) Close(ctx context.Context) {}

var _ Producer = NoneProducer{}
