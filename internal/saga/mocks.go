package saga

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// MockStep is a mock implementation of Step.
type MockStep struct {
	mock.Mock
}

var _ Step = (*MockStep)(nil)

func (m *MockStep) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStep) MaxAttempts() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockStep) Execute(ctx context.Context, job *Job) Outcome {
	args := m.Called(ctx, job)
	return args.Get(0).(Outcome)
}

func (m *MockStep) Compensate(ctx context.Context, job *Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockNotifier is a mock implementation of NotifierInterface.
type MockNotifier struct {
	mock.Mock
}

var _ NotifierInterface = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyPaymentOutcome(ctx context.Context, payment *data.Payment, cfg tenant.NotificationConfig) error {
	args := m.Called(ctx, payment, cfg)
	return args.Error(0)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockStep creates a new instance of MockStep. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStep(t testInterface) *MockStep {
	mockStep := &MockStep{}
	mockStep.Mock.Test(t)

	t.Cleanup(func() { mockStep.AssertExpectations(t) })

	return mockStep
}

// NewMockNotifier creates a new instance of MockNotifier. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockNotifier(t testInterface) *MockNotifier {
	mockNotifier := &MockNotifier{}
	mockNotifier.Mock.Test(t)

	t.Cleanup(func() { mockNotifier.AssertExpectations(t) })

	return mockNotifier
}
