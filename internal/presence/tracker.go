// Package presence keeps the live view of which devices are in the
// event's broadcast group and which role each one announces, and
// derives the advisory single-coordinator check from that view.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// DefaultHeartbeat is the re-announce period. A record is evicted
// after three missed heartbeats, which stands in for the "removed on
// disconnect" behaviour of a stateful presence service.
const DefaultHeartbeat = 5 * time.Second

// SyncFunc is invoked after every change to the tracker's membership
// view: a join, a leave, a re-announce or a stale eviction. Callbacks
// run on the tracker's own goroutine and must not block.
type SyncFunc func()

// Tracker joins the shared presence group, announces this device's
// record on a heartbeat and maintains the membership map keyed by
// device id. At most one record per device is kept; a newer announce
// replaces the older one.
type Tracker struct {
	channel   repository.PresenceChannel
	deviceID  string
	heartbeat time.Duration

	mu      sync.RWMutex
	role    string
	members map[string]domain.PresenceRecord
	syncFns []SyncFunc

	// cancel and done belong to the running loop and are guarded by mu
	// so overlapping Start and Stop calls stay safe.
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a Tracker for this device. heartbeat <= 0 selects
// DefaultHeartbeat.
func NewTracker(channel repository.PresenceChannel, deviceID string, heartbeat time.Duration) *Tracker {
	if channel == nil {
		panic("presence channel cannot be nil for Tracker")
	}
	if deviceID == "" {
		panic("device id cannot be empty for Tracker")
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Tracker{
		channel:   channel,
		deviceID:  deviceID,
		heartbeat: heartbeat,
		members:   make(map[string]domain.PresenceRecord),
	}
}

// OnSync registers a callback fired on every membership change.
// Register before Start; registration is not synchronized with the
// running tracker loop.
func (t *Tracker) OnSync(fn SyncFunc) {
	t.syncFns = append(t.syncFns, fn)
}

// Start subscribes to the presence feed, announces the current record
// and runs the tracker loop until Stop or context cancellation.
func (t *Tracker) Start(ctx context.Context) error {
	sub, err := t.channel.Subscribe(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	if err := t.announce(loopCtx); err != nil {
		logrus.WithError(err).Warn("Initial presence announce failed, heartbeat will retry")
	}

	go t.run(loopCtx, sub, done)
	return nil
}

// Announce updates this device's declared role and broadcasts it
// immediately. Safe to call repeatedly with the same role.
func (t *Tracker) Announce(ctx context.Context, role string) error {
	t.mu.Lock()
	t.role = role
	t.mu.Unlock()
	return t.announce(ctx)
}

// Role returns the role this device currently announces.
func (t *Tracker) Role() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.role
}

// Members returns a snapshot of all known presence records, this
// device's own echoed record included, ordered by device id for
// stable output.
func (t *Tracker) Members() []domain.PresenceRecord {
	t.mu.RLock()
	records := make([]domain.PresenceRecord, 0, len(t.members))
	for _, rec := range t.members {
		records = append(records, rec)
	}
	t.mu.RUnlock()
	sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })
	return records
}

// OtherCoordinatorActive re-derives the advisory coordinator check
// from the current membership snapshot.
func (t *Tracker) OtherCoordinatorActive() bool {
	return OtherCoordinatorActive(t.Members(), t.deviceID)
}

// Stop broadcasts a leave, tears down the subscription and waits for
// the tracker loop to exit. The membership view is cleared: presence
// is meaningless while disconnected.
func (t *Tracker) Stop() {
	t.mu.Lock()
	loopCancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if loopCancel == nil {
		return
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := t.channel.Leave(leaveCtx, t.deviceID); err != nil {
		logrus.WithError(err).Debug("Presence leave broadcast failed")
	}
	cancel()

	loopCancel()
	<-done

	t.mu.Lock()
	t.members = make(map[string]domain.PresenceRecord)
	t.mu.Unlock()
}

func (t *Tracker) announce(ctx context.Context) error {
	t.mu.RLock()
	rec := domain.PresenceRecord{
		DeviceID:    t.deviceID,
		Role:        t.role,
		AnnouncedAt: time.Now().UTC(),
	}
	t.mu.RUnlock()
	return t.channel.Announce(ctx, rec)
}

// run is the tracker loop: it merges incoming updates into the
// membership map, re-announces on the heartbeat and evicts records
// whose device missed three heartbeats.
func (t *Tracker) run(ctx context.Context, sub repository.PresenceSubscription, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := sub.Close(); err != nil {
			logrus.WithError(err).Debug("Presence subscription close failed")
		}
	}()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.Updates():
			if !ok {
				logrus.Warn("Presence feed closed")
				return
			}
			t.apply(update)
		case <-ticker.C:
			if err := t.announce(ctx); err != nil {
				logrus.WithError(err).Debug("Presence heartbeat announce failed")
			}
			t.evictStale()
		}
	}
}

func (t *Tracker) apply(update repository.PresenceUpdate) {
	t.mu.Lock()
	if update.Left {
		if _, known := t.members[update.Record.DeviceID]; !known {
			t.mu.Unlock()
			return
		}
		delete(t.members, update.Record.DeviceID)
	} else {
		t.members[update.Record.DeviceID] = update.Record
	}
	t.mu.Unlock()
	t.fireSync()
}

func (t *Tracker) evictStale() {
	cutoff := time.Now().UTC().Add(-3 * t.heartbeat)
	evicted := false
	t.mu.Lock()
	for id, rec := range t.members {
		if id == t.deviceID {
			continue
		}
		if rec.AnnouncedAt.Before(cutoff) {
			delete(t.members, id)
			evicted = true
			logrus.WithField("device_id", id).Info("Evicting stale presence record")
		}
	}
	t.mu.Unlock()
	if evicted {
		t.fireSync()
	}
}

func (t *Tracker) fireSync() {
	for _, fn := range t.syncFns {
		fn()
	}
}
