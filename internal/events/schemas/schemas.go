// Package schemas holds the payload shapes carried inside event messages.
// Producers and consumers share these structs so a schema change is visible
// to both sides at compile time.
package schemas

import (
	"encoding/json"
	"time"
)

// EventEnvelope is the wire shape every engine event shares. Consumers dedupe
// on (AggregateID, Sequence): the sequence is the outbox row id, monotonically
// increasing per aggregate because outbox rows are published in insert order.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TenantID      string          `json:"tenant_id"`
	AggregateID   string          `json:"aggregate_id"`
	Sequence      int64           `json:"sequence"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// EventPaymentStatusChangedData is the payload for the payment.*.v1 and
// transaction.*.v1 topics.
type EventPaymentStatusChangedData struct {
	PaymentID         string `json:"payment_id"`
	UETR              string `json:"uetr"`
	PaymentTypeCode   string `json:"payment_type_code"`
	Status            string `json:"status"`
	StatusMessage     string `json:"status_message,omitempty"`
	Rail              string `json:"rail,omitempty"`
	ClearingReference string `json:"clearing_reference,omitempty"`
}

// EventSagaStatusChangedData is the payload for the saga.*.v1 topics and the
// dead-letter topic.
type EventSagaStatusChangedData struct {
	SagaID      string `json:"saga_id"`
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	CurrentStep string `json:"current_step,omitempty"`
	FailureCode string `json:"failure_code,omitempty"`
}

// EventClearingResultData signals an inbound rail result (pacs.002/camt.054)
// to the saga parked on AwaitClearingResult. Matched by UETR.
type EventClearingResultData struct {
	UETR          string    `json:"uetr"`
	Rail          string    `json:"rail"`
	Outcome       string    `json:"outcome"`
	ReasonCode    string    `json:"reason_code,omitempty"`
	TrackingRef   string    `json:"tracking_ref,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	OriginalMsgID string    `json:"original_msg_id,omitempty"`
}

// EventPain002ReadyData is the payload published to the per-tenant response
// topics; it carries the rendered pain.002 and the routing metadata the
// tenant's downstream systems key on.
type EventPain002ReadyData struct {
	MessageType       string    `json:"messageType"`
	TenantID          string    `json:"tenantId"`
	PaymentTypeCode   string    `json:"paymentType"`
	OriginalMessageID string    `json:"originalMessageId"`
	ResponseMessageID string    `json:"responseMessageId"`
	Timestamp         time.Time `json:"timestamp"`
	ResponseMode      string    `json:"responseMode"`
	TargetSystems     []string  `json:"targetSystems,omitempty"`
	Priority          string    `json:"priority,omitempty"`
	Pain002XML        string    `json:"pain002Xml"`
}
