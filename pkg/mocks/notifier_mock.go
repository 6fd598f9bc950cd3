package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBroadcaster is a mock implementation of the notifier.Broadcaster interface.
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, businessID, event string, payload map[string]any) {
	m.Called(ctx, businessID, event, payload)
}
