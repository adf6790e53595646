package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/presence"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// ResetConfirmation is the phrase an operator must type before a full
// reset is issued. A user-error guard, not a security control.
const ResetConfirmation = "RESET"

// Connection lifecycle states. Subscribed is the terminal success
// state; ConnectError is terminal failure and the operator must retry
// explicitly. Nothing reconnects on its own.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateSubscribed   ConnState = "subscribed"
	StateConnectError ConnState = "connect_error"
)

// Archiver accepts the wiped message log for durable archival before
// a full reset destroys it. Optional: a nil Archiver skips archival.
type Archiver interface {
	EnqueueReset(ctx context.Context, resetAt time.Time, msgs []domain.Message) error
}

// Status is a point-in-time view of the session for the UI.
type Status struct {
	State                  ConnState `json:"state"`
	Error                  string    `json:"error,omitempty"`
	DeviceID               string    `json:"device_id"`
	Role                   string    `json:"role"`
	OtherCoordinatorActive bool      `json:"other_coordinator_active"`
}

// Session ties the device together: it drives the connection
// lifecycle, hydrates the state and log mirrors on connect, runs the
// single goroutine that consumes the change feed (which keeps
// per-subscription notification order intact), and owns the
// role/reset flows that span more than one component.
type Session struct {
	gateway  repository.StateGateway
	tracker  *presence.Tracker
	state    *StateService
	log      *LogService
	archiver Archiver
	deviceID string

	recentLimit int

	// lifecycleMu serializes Connect, Disconnect and the feed-closed
	// teardown, so a reconnect cannot interleave with a teardown still
	// clearing mirrors or stopping the tracker.
	lifecycleMu sync.Mutex

	mu        sync.RWMutex
	connState ConnState
	connErr   string
	sub       repository.Subscription
	cancel    context.CancelFunc
	done      chan struct{}

	// onStatus, when set, is invoked after every lifecycle or
	// presence change with the new status.
	onStatus func(Status)
}

// NewSession wires a Session from its components. archiver may be nil.
func NewSession(
	gateway repository.StateGateway,
	tracker *presence.Tracker,
	state *StateService,
	log *LogService,
	archiver Archiver,
	deviceID string,
	recentLimit int,
) *Session {
	if gateway == nil || tracker == nil || state == nil || log == nil {
		panic("gateway, tracker and services cannot be nil for Session")
	}
	if deviceID == "" {
		panic("device id cannot be empty for Session")
	}
	if recentLimit <= 0 {
		recentLimit = DefaultRecentMessages
	}
	s := &Session{
		gateway:     gateway,
		tracker:     tracker,
		state:       state,
		log:         log,
		archiver:    archiver,
		deviceID:    deviceID,
		recentLimit: recentLimit,
		connState:   StateDisconnected,
	}
	tracker.OnSync(s.notifyStatus)
	return s
}

// OnStatus registers the status-change callback. Register during
// wiring, before Connect.
func (s *Session) OnStatus(fn func(Status)) { s.onStatus = fn }

// Status returns the current lifecycle and role view.
func (s *Session) Status() Status {
	s.mu.RLock()
	state, errMsg := s.connState, s.connErr
	s.mu.RUnlock()
	return Status{
		State:                  state,
		Error:                  errMsg,
		DeviceID:               s.deviceID,
		Role:                   s.tracker.Role(),
		OtherCoordinatorActive: s.tracker.OtherCoordinatorActive(),
	}
}

// Connect hydrates the mirrors, opens the change feed and joins the
// presence room: snapshot fetch (a missing row means defaults), log
// tail fetch, subscribe, announce. Any failure lands the session in
// ConnectError with the cause recorded; the operator retries by
// calling Connect again.
func (s *Session) Connect(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.connState == StateSubscribed || s.connState == StateConnecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.connState = StateConnecting
	s.connErr = ""
	s.mu.Unlock()
	s.notifyStatus()

	logCtx := logrus.WithField("device_id", s.deviceID)

	snapshot, err := s.gateway.FetchSnapshot(ctx)
	if err != nil {
		if err == repository.ErrNotFound {
			logCtx.Info("No event state row yet, starting from defaults")
			snapshot = domain.DefaultEventState()
		} else {
			return s.failConnect(err)
		}
	}

	tail, err := s.gateway.FetchRecentMessages(ctx, s.recentLimit)
	if err != nil {
		return s.failConnect(err)
	}

	sub, err := s.gateway.Subscribe(ctx)
	if err != nil {
		return s.failConnect(err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	if err := s.tracker.Start(loopCtx); err != nil {
		cancel()
		_ = sub.Close()
		return s.failConnect(err)
	}

	s.state.Seed(snapshot)
	s.log.Seed(tail)

	done := make(chan struct{})
	s.mu.Lock()
	s.sub = sub
	s.cancel = cancel
	s.done = done
	s.connState = StateSubscribed
	s.mu.Unlock()

	go s.run(loopCtx, sub, done)

	logCtx.WithFields(logrus.Fields{
		"door_count": snapshot.DoorCount,
		"capacity":   snapshot.Capacity,
		"log_tail":   len(tail),
	}).Info("Session subscribed")
	s.notifyStatus()
	return nil
}

func (s *Session) failConnect(err error) error {
	s.mu.Lock()
	s.connState = StateConnectError
	s.connErr = err.Error()
	s.mu.Unlock()
	logrus.WithError(err).Warn("Session connect failed")
	s.notifyStatus()
	return err
}

// Disconnect leaves the presence room, closes the feed and clears all
// in-memory mirrors. In-flight background pushes are left to finish or
// fail on their own; their effect on the cleared mirror is moot.
func (s *Session) Disconnect() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.connState != StateSubscribed {
		s.mu.Unlock()
		return
	}
	sub, cancel, done := s.sub, s.cancel, s.done
	s.sub, s.cancel, s.done = nil, nil, nil
	s.connState = StateDisconnected
	s.connErr = ""
	s.mu.Unlock()

	s.tracker.Stop()
	if sub != nil {
		_ = sub.Close()
	}
	cancel()
	<-done

	s.state.Clear()
	s.log.Clear()
	logrus.WithField("device_id", s.deviceID).Info("Session disconnected, mirrors cleared")
	s.notifyStatus()
}

// run is the change-feed loop: the only goroutine that applies remote
// notifications, so notifications for the same field reach the mirror
// in the order the subscription delivered them.
func (s *Session) run(ctx context.Context, sub repository.Subscription, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			close(done)
			return
		case event, ok := <-sub.Events():
			if !ok {
				// Signal loop exit before taking the lifecycle lock:
				// a concurrent Disconnect holds that lock while
				// waiting on done.
				close(done)
				s.feedClosed(sub)
				return
			}
			switch event.Kind {
			case repository.SnapshotChanged:
				s.state.ApplySnapshotChange(event.Snapshot)
			case repository.MessageInserted:
				s.log.ApplyInsert(event.Message)
			default:
				logrus.WithField("kind", int(event.Kind)).Warn("Dropping change event with unknown kind")
			}
		}
	}
}

// feedClosed handles the change feed dropping out from under a
// subscribed session. Treated like a disconnect: mirrors are cleared
// and the operator must reconnect explicitly. It runs under the
// lifecycle lock and only acts when sub is still the active
// subscription, so it can never tear down a session a newer Connect
// or Disconnect already owns.
func (s *Session) feedClosed(sub repository.Subscription) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.connState != StateSubscribed || s.sub != sub {
		s.mu.Unlock()
		return
	}
	s.connState = StateDisconnected
	s.connErr = "change feed closed"
	cancel := s.cancel
	s.sub, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	s.tracker.Stop()
	_ = sub.Close()
	if cancel != nil {
		cancel()
	}
	s.state.Clear()
	s.log.Clear()
	logrus.Warn("Change feed closed, session disconnected")
	s.notifyStatus()
}

func (s *Session) requireSubscribed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.connState != StateSubscribed {
		return ErrNotConnected
	}
	return nil
}

// SetRole announces a new role for this device. Selecting the
// coordinator role is refused while another device announces it. The
// enforcement is advisory only: two devices racing their announcements
// can both pass this check for a moment (see the arbitration
// package).
func (s *Session) SetRole(ctx context.Context, role string) error {
	if err := s.requireSubscribed(); err != nil {
		return err
	}
	if !domain.ValidRole(role) {
		return ErrInvalidRole
	}
	if role == domain.RoleCoordinator && s.tracker.OtherCoordinatorActive() {
		return ErrOtherCoordinatorActive
	}
	if err := s.tracker.Announce(ctx, role); err != nil {
		return err
	}
	s.notifyStatus()
	return nil
}

// SendMessage appends a log message stamped with this device's current
// station. A device without a role cannot address the log.
func (s *Session) SendMessage(ctx context.Context, text string) (domain.Message, error) {
	if err := s.requireSubscribed(); err != nil {
		return domain.Message{}, err
	}
	role := s.tracker.Role()
	if role == domain.RoleNone {
		return domain.Message{}, ErrNoRole
	}
	return s.log.Send(ctx, domain.RoleStation(role), text)
}

// AdjustDoorCount applies a counter delta through the reconciler.
func (s *Session) AdjustDoorCount(ctx context.Context, delta int) (int, error) {
	if err := s.requireSubscribed(); err != nil {
		return 0, err
	}
	return s.state.AdjustDoorCount(ctx, delta), nil
}

// SetCapacity applies a new venue capacity through the reconciler.
func (s *Session) SetCapacity(ctx context.Context, capacity int) error {
	if err := s.requireSubscribed(); err != nil {
		return err
	}
	return s.state.SetCapacity(ctx, capacity)
}

// SetWiFi applies new venue WiFi credentials through the reconciler.
func (s *Session) SetWiFi(ctx context.Context, ssid, password string) error {
	if err := s.requireSubscribed(); err != nil {
		return err
	}
	s.state.SetWiFi(ctx, ssid, password)
	return nil
}

// FullReset wipes the counter and the message log, locally and on the
// backend, after the operator typed the exact confirmation phrase.
// Anything else is a complete no-op: no backend calls, no state
// change. The wiped messages are handed to the archiver first when one
// is configured; an archival failure is logged and does not block the
// reset.
func (s *Session) FullReset(ctx context.Context, confirmation string) error {
	if err := s.requireSubscribed(); err != nil {
		return err
	}
	if confirmation != ResetConfirmation {
		return ErrResetNotConfirmed
	}

	if s.archiver != nil {
		if msgs := s.log.Messages(); len(msgs) > 0 {
			if err := s.archiver.EnqueueReset(ctx, time.Now().UTC(), msgs); err != nil {
				logrus.WithError(err).Warn("Failed to enqueue log archive, continuing reset")
			}
		}
	}

	if err := s.log.Wipe(ctx); err != nil {
		return err
	}
	s.state.ZeroDoorCount(ctx)
	logrus.WithField("device_id", s.deviceID).Info("Full reset issued")
	return nil
}

func (s *Session) notifyStatus() {
	if s.onStatus != nil {
		s.onStatus(s.Status())
	}
}
