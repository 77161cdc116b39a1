package events

import (
	"context"
	"fmt"
	"strings"
)

// Topic Names
const (
	PaymentInitiatedTopic     = "payment.initiated.v1"
	PaymentValidatedTopic     = "payment.validated.v1"
	PaymentCompletedTopic     = "payment.completed.v1"
	PaymentFailedTopic        = "payment.failed.v1"
	TransactionCreatedTopic   = "transaction.created.v1"
	TransactionCompletedTopic = "transaction.completed.v1"
	SagaStartedTopic          = "saga.started.v1"
	SagaCompletedTopic        = "saga.completed.v1"
	ClearingResultTopic       = "clearing.result.v1"
	DeadLetterTopic           = "payment-engine.dead-letter"
)

// Type Names
const (
	PaymentStatusChangedType     = "payment-status-changed"
	TransactionStatusChangedType = "transaction-status-changed"
	SagaStatusChangedType        = "saga-status-changed"
	ClearingResultReceivedType   = "clearing-result-received"
	Pain002ReadyType             = "pain002-ready"
	SagaDeadLetteredType         = "saga-dead-lettered"
)

// ResponseTopicName builds the per-tenant response topic a pain.002 is
// published to when the payment's response mode is KAFKA_TOPIC. Payment type
// codes are uppercase in the domain but lowercase in topic names.
func ResponseTopicName(tenantID, paymentTypeCode string) string {
	return fmt.Sprintf("payment-engine.%s.responses.%s.pain002", tenantID, strings.ToLower(paymentTypeCode))
}

type EventHandler interface {
	Name() string
	CanHandleMessage(ctx context.Context, message *Message) bool
	Handle(ctx context.Context, message *Message) error
}
