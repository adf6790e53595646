package service

import (
	"context"
	"sync"
	"time"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// DefaultRecentMessages is the size of the recency window loaded on
// connect. The visible log is a tail, not full history.
const DefaultRecentMessages = 50

// LogService maintains the device's ordered mirror of the append-only
// message log: bulk hydration on connect, incremental append on insert
// notifications. Appends are de-duplicated by the backend-assigned ID,
// so a locally sent message and its own echoed insert notification
// merge into a single entry regardless of arrival order.
type LogService struct {
	gateway repository.StateGateway

	mu   sync.RWMutex
	msgs []domain.Message
	seen map[uint64]struct{}

	// onAppend and onClear, when set, feed the local live view.
	onAppend func(domain.Message)
	onClear  func()
}

// NewLogService creates a LogService over the given gateway.
func NewLogService(gateway repository.StateGateway) *LogService {
	if gateway == nil {
		panic("state gateway cannot be nil for LogService")
	}
	return &LogService{
		gateway: gateway,
		seen:    make(map[uint64]struct{}),
	}
}

// OnAppend registers the append callback. Register during wiring.
func (s *LogService) OnAppend(fn func(domain.Message)) { s.onAppend = fn }

// OnClear registers the clear callback. Register during wiring.
func (s *LogService) OnClear(fn func()) { s.onClear = fn }

// Messages returns a copy of the mirrored log, oldest first.
func (s *LogService) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Seed replaces the mirror with the hydration tail fetched on connect.
func (s *LogService) Seed(msgs []domain.Message) {
	s.mu.Lock()
	s.msgs = make([]domain.Message, len(msgs))
	copy(s.msgs, msgs)
	s.seen = make(map[uint64]struct{}, len(msgs))
	for _, msg := range msgs {
		s.seen[msg.ID] = struct{}{}
	}
	s.mu.Unlock()
}

// Clear drops the in-memory mirror. Called on disconnect and by the
// full reset; the backend is untouched.
func (s *LogService) Clear() {
	s.mu.Lock()
	s.msgs = nil
	s.seen = make(map[uint64]struct{})
	s.mu.Unlock()
	if s.onClear != nil {
		s.onClear()
	}
}

// Send validates and appends a new message for the given station,
// stamping the sender's local time. On success the message is merged
// into the local mirror immediately; the echoed insert notification
// that follows de-duplicates against it by ID.
func (s *LogService) Send(ctx context.Context, station, text string) (domain.Message, error) {
	if !domain.ValidStation(station) {
		return domain.Message{}, ErrInvalidRole
	}
	msg, ok := domain.NewMessage(station, text, time.Now())
	if !ok {
		return domain.Message{}, ErrEmptyMessage
	}

	sent, err := s.gateway.AppendMessage(ctx, msg)
	if err != nil {
		return domain.Message{}, err
	}
	s.ApplyInsert(sent)
	return sent, nil
}

// ApplyInsert merges one insert notification into the mirror. Inserts
// arrive at least once; a message whose ID is already present is
// dropped.
func (s *LogService) ApplyInsert(msg domain.Message) {
	s.mu.Lock()
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	if s.onAppend != nil {
		s.onAppend(msg)
	}
}

// Wipe clears the mirror and bulk-deletes the backend log. Part of the
// full reset flow; the confirmation gate lives in the Session.
func (s *LogService) Wipe(ctx context.Context) error {
	s.Clear()
	return s.gateway.DeleteAllMessages(ctx)
}
