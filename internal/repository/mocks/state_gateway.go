// Package mocks contains testify mock implementations of the
// repository interfaces, used by the service and presence tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// StateGateway is a mock of repository.StateGateway.
type StateGateway struct {
	mock.Mock
}

func (m *StateGateway) FetchSnapshot(ctx context.Context) (domain.EventState, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.EventState), args.Error(1)
}

func (m *StateGateway) UpdateSnapshot(ctx context.Context, change domain.SnapshotChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *StateGateway) FetchRecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, limit)
	var msgs []domain.Message
	if v := args.Get(0); v != nil {
		msgs = v.([]domain.Message)
	}
	return msgs, args.Error(1)
}

func (m *StateGateway) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(domain.Message), args.Error(1)
}

func (m *StateGateway) DeleteAllMessages(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StateGateway) Subscribe(ctx context.Context) (repository.Subscription, error) {
	args := m.Called(ctx)
	var sub repository.Subscription
	if v := args.Get(0); v != nil {
		sub = v.(repository.Subscription)
	}
	return sub, args.Error(1)
}

var _ repository.StateGateway = (*StateGateway)(nil)
