package fraud

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockScorer is a mock implementation of ScorerInterface.
type MockScorer struct {
	mock.Mock
}

var _ ScorerInterface = (*MockScorer)(nil)

func (m *MockScorer) Score(ctx context.Context, scoreReq ScoreRequest) (*ScoreResult, error) {
	args := m.Called(ctx, scoreReq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ScoreResult), args.Error(1)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockScorer creates a new instance of MockScorer. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockScorer(t testInterface) *MockScorer {
	mockScorer := &MockScorer{}
	mockScorer.Mock.Test(t)

	t.Cleanup(func() { mockScorer.AssertExpectations(t) })

	return mockScorer
}
