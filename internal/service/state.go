package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// pushTimeout bounds the background snapshot push that follows an
// optimistic local mutation.
const pushTimeout = 5 * time.Second

// StateService owns the device's local mirror of the shared event
// state and reconciles it against the backend. Two write paths exist:
// local mutations apply optimistically and then push the written
// fields to the backend in the background, and snapshot notifications
// overwrite the mirror unconditionally. Remote truth always wins,
// even when an adverse echo transiently undoes a fresh local change.
// A failed push is logged and left alone; the next notification or
// reconnect-time fetch corrects any divergence.
type StateService struct {
	gateway repository.StateGateway

	mu    sync.RWMutex
	state domain.EventState

	// pushMu guards the FIFO push queue. A single drainer goroutine
	// sends queued changes one at a time, so this device's writes
	// reach the backend in mutation order.
	pushMu    sync.Mutex
	pushQueue []domain.SnapshotChange
	pushing   bool

	// onChange, when set, is invoked after every mirror change with
	// the new state. Used to push updates to the local live view.
	onChange func(domain.EventState)
}

// NewStateService creates a StateService over the given gateway.
func NewStateService(gateway repository.StateGateway) *StateService {
	if gateway == nil {
		panic("state gateway cannot be nil for StateService")
	}
	return &StateService{
		gateway: gateway,
		state:   domain.DefaultEventState(),
	}
}

// OnChange registers the mirror-change callback. Register during
// wiring, before the session connects.
func (s *StateService) OnChange(fn func(domain.EventState)) {
	s.onChange = fn
}

// Snapshot returns a copy of the current local mirror.
func (s *StateService) Snapshot() domain.EventState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Seed replaces the mirror with the reconnect-time snapshot.
func (s *StateService) Seed(state domain.EventState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify()
}

// Clear resets the mirror to defaults. Called on disconnect; a stale
// mirror is meaningless without a feed correcting it.
func (s *StateService) Clear() {
	s.Seed(domain.DefaultEventState())
}

// AdjustDoorCount applies a counter delta optimistically and pushes
// the clamped absolute value to the backend in the background. The
// count is floored at zero before it is applied or sent; it is never
// capped at capacity. Returns the new local count.
func (s *StateService) AdjustDoorCount(ctx context.Context, delta int) int {
	s.mu.Lock()
	next := s.state.DoorCount + delta
	if next < 0 {
		next = 0
	}
	s.state.DoorCount = next
	s.mu.Unlock()
	s.notify()

	s.push(domain.SnapshotChange{DoorCount: &next})
	return next
}

// SetCapacity applies a new capacity optimistically and pushes it.
func (s *StateService) SetCapacity(ctx context.Context, capacity int) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}
	s.mu.Lock()
	s.state.Capacity = capacity
	s.mu.Unlock()
	s.notify()

	s.push(domain.SnapshotChange{Capacity: &capacity})
	return nil
}

// SetWiFi applies new WiFi credentials optimistically and pushes both
// fields together.
func (s *StateService) SetWiFi(ctx context.Context, ssid, password string) {
	s.mu.Lock()
	s.state.WifiSSID = ssid
	s.state.WifiPassword = password
	s.mu.Unlock()
	s.notify()

	s.push(domain.SnapshotChange{WifiSSID: &ssid, WifiPassword: &password})
}

// ZeroDoorCount sets the counter to zero as part of a full reset and
// pushes the zero to the backend.
func (s *StateService) ZeroDoorCount(ctx context.Context) {
	zero := 0
	s.mu.Lock()
	s.state.DoorCount = 0
	s.mu.Unlock()
	s.notify()

	s.push(domain.SnapshotChange{DoorCount: &zero})
}

// ApplySnapshotChange overwrites the fields present in an authoritative
// notification. Applying the same notification twice is a no-op after
// the first application.
func (s *StateService) ApplySnapshotChange(change domain.SnapshotChange) {
	if change.IsEmpty() {
		return
	}
	s.mu.Lock()
	change.ApplyTo(&s.state)
	s.mu.Unlock()
	s.notify()
}

// push queues the written fields for the backend without blocking the
// caller. Queued changes are sent one at a time in enqueue order, so
// the backend commits this device's mutations in the order they were
// made locally. A failed push is logged, not surfaced, and local state
// is left as-is to self-correct.
func (s *StateService) push(change domain.SnapshotChange) {
	s.pushMu.Lock()
	s.pushQueue = append(s.pushQueue, change)
	if s.pushing {
		s.pushMu.Unlock()
		return
	}
	s.pushing = true
	s.pushMu.Unlock()
	go s.drainPushes()
}

func (s *StateService) drainPushes() {
	for {
		s.pushMu.Lock()
		if len(s.pushQueue) == 0 {
			s.pushing = false
			s.pushMu.Unlock()
			return
		}
		change := s.pushQueue[0]
		s.pushQueue = s.pushQueue[1:]
		s.pushMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		if err := s.gateway.UpdateSnapshot(ctx, change); err != nil {
			logrus.WithError(err).Warn("Snapshot push failed, leaving optimistic local state in place")
		}
		cancel()
	}
}

func (s *StateService) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}
