package events

import (
	"fmt"
	"strings"
)

type EventBrokerType string

const (
	// KafkaEventBrokerType publishes and consumes through Kafka.
	KafkaEventBrokerType EventBrokerType = "KAFKA"
	// NoneEventBrokerType runs without a broker: producers log and drop, the
	// outbox keeps accumulating until a broker is configured.
	NoneEventBrokerType EventBrokerType = "NONE"
)

func ParseEventBrokerType(ebType string) (EventBrokerType, error) {
	switch EventBrokerType(strings.ToUpper(ebType)) {
	case KafkaEventBrokerType:
		return KafkaEventBrokerType, nil
	case NoneEventBrokerType:
		return NoneEventBrokerType, nil
	default:
		return "", fmt.Errorf("invalid event broker type %q", ebType)
	}
}
