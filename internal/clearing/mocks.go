package clearing

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paymenthub/payment-engine-backend/internal/data"
)

// MockAdapter is a mock implementation of AdapterInterface.
type MockAdapter struct {
	mock.Mock
}

var _ AdapterInterface = (*MockAdapter)(nil)

func (m *MockAdapter) Rail() data.Rail {
	args := m.Called()
	return args.Get(0).(data.Rail)
}

func (m *MockAdapter) Capabilities() data.Capabilities {
	args := m.Called()
	return args.Get(0).(data.Capabilities)
}

func (m *MockAdapter) Submit(ctx context.Context, payment *data.Payment) (*SubmitResult, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SubmitResult), args.Error(1)
}

func (m *MockAdapter) Cancel(ctx context.Context, cancelReq CancelRequest) (*CancelResult, error) {
	args := m.Called(ctx, cancelReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CancelResult), args.Error(1)
}

func (m *MockAdapter) Poll(ctx context.Context, payment *data.Payment) (*PollResult, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PollResult), args.Error(1)
}

// MockRegistry is a mock implementation of RegistryInterface.
type MockRegistry struct {
	mock.Mock
}

var _ RegistryInterface = (*MockRegistry)(nil)

func (m *MockRegistry) ForRail(ctx context.Context, tenantID string, rail data.Rail) (AdapterInterface, error) {
	args := m.Called(ctx, tenantID, rail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(AdapterInterface), args.Error(1)
}

func (m *MockRegistry) RailDegraded(ctx context.Context, tenantID string, rail data.Rail) (bool, string) {
	args := m.Called(ctx, tenantID, rail)
	return args.Bool(0), args.String(1)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockAdapter creates a new instance of MockAdapter. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockAdapter(t testInterface) *MockAdapter {
	mockAdapter := &MockAdapter{}
	mockAdapter.Mock.Test(t)

	t.Cleanup(func() { mockAdapter.AssertExpectations(t) })

	return mockAdapter
}

// NewMockRegistry creates a new instance of MockRegistry. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockRegistry(t testInterface) *MockRegistry {
	mockRegistry := &MockRegistry{}
	mockRegistry.Mock.Test(t)

	t.Cleanup(func() { mockRegistry.AssertExpectations(t) })

	return mockRegistry
}
