package dispatch

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
)

// MockDispatcher is a mock implementation of DispatcherInterface.
type MockDispatcher struct {
	mock.Mock
}

var _ DispatcherInterface = (*MockDispatcher)(nil)

func (m *MockDispatcher) BuildEnvelope(ctx context.Context, payment *data.Payment) (*schemas.EventPain002ReadyData, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.EventPain002ReadyData), args.Error(1)
}

func (m *MockDispatcher) DispatchTerminal(ctx context.Context, payment *data.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockDispatcher) Redeliver(ctx context.Context, delivery data.ResponseDelivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

// MockWebhookSender is a mock implementation of WebhookSenderInterface.
type MockWebhookSender struct {
	mock.Mock
}

var _ WebhookSenderInterface = (*MockWebhookSender)(nil)

func (m *MockWebhookSender) Send(ctx context.Context, callbackURL, secret string, payload []byte) error {
	args := m.Called(ctx, callbackURL, secret, payload)
	return args.Error(0)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockDispatcher creates a new instance of MockDispatcher. It also
// registers a testing interface on the mock and a cleanup function to assert
// the mocks expectations.
func NewMockDispatcher(t testInterface) *MockDispatcher {
	mockDispatcher := &MockDispatcher{}
	mockDispatcher.Mock.Test(t)

	t.Cleanup(func() { mockDispatcher.AssertExpectations(t) })

	return mockDispatcher
}

// NewMockWebhookSender creates a new instance of MockWebhookSender. It also
// registers a testing interface on the mock and a cleanup function to assert
// the mocks expectations.
func NewMockWebhookSender(t testInterface) *MockWebhookSender {
	mockSender := &MockWebhookSender{}
	mockSender.Mock.Test(t)

	t.Cleanup(func() { mockSender.AssertExpectations(t) })

	return mockSender
}
