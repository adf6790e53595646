package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// PresenceChannel is a mock of repository.PresenceChannel.
type PresenceChannel struct {
	mock.Mock
}

func (m *PresenceChannel) Announce(ctx context.Context, rec domain.PresenceRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *PresenceChannel) Leave(ctx context.Context, deviceID string) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *PresenceChannel) Subscribe(ctx context.Context) (repository.PresenceSubscription, error) {
	args := m.Called(ctx)
	var sub repository.PresenceSubscription
	if v := args.Get(0); v != nil {
		sub = v.(repository.PresenceSubscription)
	}
	return sub, args.Error(1)
}

var _ repository.PresenceChannel = (*PresenceChannel)(nil)

// PresenceSubscription is the channel-backed counterpart for the
// presence feed.
type PresenceSubscription struct {
	updates chan repository.PresenceUpdate
	once    sync.Once
}

func NewPresenceSubscription(buffer int) *PresenceSubscription {
	return &PresenceSubscription{updates: make(chan repository.PresenceUpdate, buffer)}
}

// Emit delivers one presence update to the subscriber.
func (s *PresenceSubscription) Emit(update repository.PresenceUpdate) {
	s.updates <- update
}

func (s *PresenceSubscription) Updates() <-chan repository.PresenceUpdate {
	return s.updates
}

func (s *PresenceSubscription) Close() error {
	s.once.Do(func() { close(s.updates) })
	return nil
}

var _ repository.PresenceSubscription = (*PresenceSubscription)(nil)
