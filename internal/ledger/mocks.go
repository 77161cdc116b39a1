package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of AdapterInterface.
type MockClient struct {
	mock.Mock
}

var _ AdapterInterface = (*MockClient)(nil)

func (m *MockClient) Ping(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) Hold(ctx context.Context, holdReq HoldRequest) (*HoldResult, error) {
	args := m.Called(ctx, holdReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HoldResult), args.Error(1)
}

func (m *MockClient) Debit(ctx context.Context, debitReq DebitRequest) (*Operation, error) {
	args := m.Called(ctx, debitReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Operation), args.Error(1)
}

func (m *MockClient) Credit(ctx context.Context, creditReq CreditRequest) (*Operation, error) {
	args := m.Called(ctx, creditReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Operation), args.Error(1)
}

func (m *MockClient) ReleaseHold(ctx context.Context, releaseReq ReleaseRequest) (*Operation, error) {
	args := m.Called(ctx, releaseReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Operation), args.Error(1)
}

func (m *MockClient) GetOperation(ctx context.Context, idempotencyKey string) (*Operation, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Operation), args.Error(1)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t testInterface) *MockClient {
	mockClient := &MockClient{}
	mockClient.Mock.Test(t)

	t.Cleanup(func() { mockClient.AssertExpectations(t) })

	return mockClient
}
