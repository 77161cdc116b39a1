package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

var (
	ErrTopicRequired    = errors.New("message topic is required")
	ErrKeyRequired      = errors.New("message key is required")
	ErrTenantIDRequired = errors.New("message tenant ID is required")
	ErrTypeRequired     = errors.New("message type is required")
	ErrDataRequired     = errors.New("message data is required")
)

type Message struct {
	Topic                string           `json:"topic"`
	Key                  string           `json:"key"`
	TenantID             string           `json:"tenant_id"`
	Type                 string           `json:"type"`
	Data                 any              `json:"data"`
	Errors               []HandlerError   `json:"errors,omitempty"`
	SuccessfulExecutions []HandlerSuccess `json:"successful_executions,omitempty"`
}

type HandlerError struct {
	// FailedAt timestamp for the time of failure.
	FailedAt time.Time `json:"failed_at"`
	// ErrorMessage detailed error message. Used for displaying.
	ErrorMessage string `json:"error_message"`
	// HandlerName name of the handler where the error occurred.
	HandlerName string `json:"handler_name"`
	// Err full handler error.
	Err error `json:"-"`
}

// HandlerSuccess represents a successful handling of a message
type HandlerSuccess struct {
	// ExecutedAt timestamp for the time of successful handling
	ExecutedAt time.Time `json:"executed_at"`
	// HandlerName name of the handler that succeeded
	HandlerName string `json:"handler_name"`
}

// NewMessage returns a new message with values passed by parameters. It also parses the `TenantID` from the context and
// injects it into the message. Returns an error if no tenant is found in the context.
func NewMessage(ctx context.Context, topic, key, messageType string, data any) (*Message, error) {
	tc, err := tenantctx.GetTenantContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting tenant from context: %w", err)
	}

	return &Message{
		Topic:    topic,
		Key:      key,
		TenantID: tc.TenantID,
		Type:     messageType,
		Data:     data,
	}, nil
}

func (m Message) String() string {
	return fmt.Sprintf("Message{Topic: %s, Key: %s, Type: %s, TenantID: %s, Data: %v}", m.Topic, m.Key, m.Type, m.TenantID, m.Data)
}

func (m Message) Validate() error {
	if m.Topic == "" {
		return ErrTopicRequired
	}

	if m.Key == "" {
		return ErrKeyRequired
	}

	if m.TenantID == "" {
		return ErrTenantIDRequired
	}

	if m.Type == "" {
		return ErrTypeRequired
	}

	if m.Data == nil {
		return ErrDataRequired
	}

	return nil
}

// RecordError appends a failed handler execution to the message so replays and
// DLQ records carry the failure trail.
func (m *Message) RecordError(handlerName string, hErr error) {
	m.Errors = append(m.Errors, HandlerError{
		FailedAt:     time.Now(),
		ErrorMessage: hErr.Error(),
		HandlerName:  handlerName,
		Err:          hErr,
	})
}

// RecordSuccess appends a successful handler execution to the message so a
// replay of a partially handled message skips handlers that already ran.
func (m *Message) RecordSuccess(handlerName string) {
	m.SuccessfulExecutions = append(m.SuccessfulExecutions, HandlerSuccess{
		ExecutedAt:  time.Now(),
		HandlerName: handlerName,
	})
}
