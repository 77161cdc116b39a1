package routing

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paymenthub/payment-engine-backend/internal/data"
)

// MockResolver is a mock implementation of ResolverInterface.
type MockResolver struct {
	mock.Mock
}

var _ ResolverInterface = (*MockResolver)(nil)

func (m *MockResolver) Resolve(ctx context.Context, input Input) ([]Candidate, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candidate), args.Error(1)
}

// MockBreakerProber is a mock implementation of BreakerProberInterface.
type MockBreakerProber struct {
	mock.Mock
}

var _ BreakerProberInterface = (*MockBreakerProber)(nil)

func (m *MockBreakerProber) RailDegraded(ctx context.Context, tenantID string, rail data.Rail) (bool, string) {
	args := m.Called(ctx, tenantID, rail)
	return args.Bool(0), args.String(1)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockResolver creates a new instance of MockResolver. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockResolver(t testInterface) *MockResolver {
	mockResolver := &MockResolver{}
	mockResolver.Mock.Test(t)

	t.Cleanup(func() { mockResolver.AssertExpectations(t) })

	return mockResolver
}
