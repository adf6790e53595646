package repository

import (
	"context"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
)

// ChangeEvent is one typed change notification from the backend feed.
// Exactly one of Snapshot or Message is set, matching the Kind.
// Notifications are delivered at least once and a device's own write
// echoes back through the same feed; payloads are last-writer-wins
// authoritative values for the fields present, never deltas.
type ChangeEvent struct {
	Kind     ChangeKind
	Snapshot domain.SnapshotChange
	Message  domain.Message
}

// ChangeKind discriminates ChangeEvent payloads.
type ChangeKind int

const (
	// SnapshotChanged signals an UPDATE on the event_state row.
	SnapshotChanged ChangeKind = iota + 1
	// MessageInserted signals an INSERT on the messages table.
	MessageInserted
)

// Subscription is a cancellable handle on the change-notification
// feed. Events() is closed after Close or when the underlying
// connection drops.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// StateGateway is the abstraction over the remote data service: the
// single event_state row, the append-only messages table and the
// row-level change feed. Operations are synchronous from the caller's
// point of view and may fail on connectivity loss. Failures are
// reported and never retried internally; the reconciler and the log
// synchronizer decide what to do with optimistic local state.
type StateGateway interface {
	// FetchSnapshot reads the event_state row. Returns ErrNotFound
	// when the row has never been written.
	FetchSnapshot(ctx context.Context) (domain.EventState, error)

	// UpdateSnapshot writes only the fields present in the change.
	UpdateSnapshot(ctx context.Context, change domain.SnapshotChange) error

	// FetchRecentMessages returns at most limit of the newest
	// messages, ordered oldest first. This is a recency window, not
	// full history.
	FetchRecentMessages(ctx context.Context, limit int) ([]domain.Message, error)

	// AppendMessage inserts the message and returns it with the
	// backend-assigned monotonic ID.
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)

	// DeleteAllMessages wipes the message log.
	DeleteAllMessages(ctx context.Context) error

	// Subscribe opens the change feed. The subscription stays open
	// until Close or until ctx is cancelled.
	Subscribe(ctx context.Context) (Subscription, error)
}
