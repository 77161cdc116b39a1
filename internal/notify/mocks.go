package notify

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MessengerClientMock struct {
	mock.Mock
}

func (mc *MessengerClientMock) SendMessage(ctx context.Context, message Message) error {
	args := mc.Called(ctx, message)
	return args.Error(0)
}

func (mc *MessengerClientMock) MessengerType() MessengerType {
	args := mc.Called()
	return args.Get(0).(MessengerType)
}

var _ MessengerClient = (*MessengerClientMock)(nil)

type MockMessageDispatcher struct {
	mock.Mock
}

func (m *MockMessageDispatcher) RegisterClient(ctx context.Context, channel MessageChannel, client MessengerClient) {
	m.Called(ctx, channel, client)
}

func (m *MockMessageDispatcher) SendMessage(ctx context.Context, message Message, channelPriority []MessageChannel) (MessengerType, error) {
	args := m.Called(ctx, message, channelPriority)
	return args.Get(0).(MessengerType), args.Error(1)
}

func (m *MockMessageDispatcher) GetClient(channel MessageChannel) (MessengerClient, error) {
	args := m.Called(channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(MessengerClient), args.Error(1)
}

var _ MessageDispatcherInterface = (*MockMessageDispatcher)(nil)

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMessengerClientMock creates a new instance of MessengerClientMock. It
// also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMessengerClientMock(t testInterface) *MessengerClientMock {
	mockClient := &MessengerClientMock{}
	mockClient.Mock.Test(t)

	t.Cleanup(func() { mockClient.AssertExpectations(t) })

	return mockClient
}

// NewMockMessageDispatcher creates a new instance of MockMessageDispatcher.
// It also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMockMessageDispatcher(t testInterface) *MockMessageDispatcher {
	mockDispatcher := &MockMessageDispatcher{}
	mockDispatcher.Mock.Test(t)

	t.Cleanup(func() { mockDispatcher.AssertExpectations(t) })

	return mockDispatcher
}
