package mocks

import (
	"context"

	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/stretchr/testify/mock"
)

// TestifyMockSender is a testify mock of the session surface the dispatch
// executor drives.
type TestifyMockSender struct {
	mock.Mock
}

// State is a mock implementation of the session's State method
func (m *TestifyMockSender) State() channel.State {
	args := m.Called()
	return args.Get(0).(channel.State)
}

// Send is a mock implementation of the session's Send method
func (m *TestifyMockSender) Send(ctx context.Context, to, text string) error {
	args := m.Called(ctx, to, text)
	return args.Error(0)
}
