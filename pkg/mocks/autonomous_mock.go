package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSessionResolver is a mock implementation of the autonomous.SessionResolver interface.
type MockSessionResolver struct {
	mock.Mock
}

func (m *MockSessionResolver) MarkResolved(ctx context.Context, sessionID string, resolved bool) {
	m.Called(ctx, sessionID, resolved)
}

// MockChannelSender is a mock implementation of the autonomous.ChannelSender interface.
type MockChannelSender struct {
	mock.Mock
}

func (m *MockChannelSender) Send(ctx context.Context, channel, userID, message string) error {
	args := m.Called(ctx, channel, userID, message)

	return args.Error(0)
}
