package repository

import (
	"context"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
)

// PresenceUpdate is one broadcast on the shared presence channel.
// Left marks an explicit leave; everything else is an announce, which
// is idempotent and safe to repeat (devices re-announce on a heartbeat
// so peers can evict records of devices that vanished without a
// leave).
type PresenceUpdate struct {
	Record domain.PresenceRecord
	Left   bool
}

// PresenceSubscription is a cancellable handle on the presence feed.
type PresenceSubscription interface {
	Updates() <-chan PresenceUpdate
	Close() error
}

// PresenceChannel is the ephemeral broadcast group all devices of one
// event join. It carries announces between devices; it stores nothing.
// There is no global ordering across members: two devices announcing
// concurrently may observe each other in different order.
type PresenceChannel interface {
	// Announce broadcasts this device's current record to the group.
	Announce(ctx context.Context, rec domain.PresenceRecord) error

	// Leave broadcasts an explicit leave for the device.
	Leave(ctx context.Context, deviceID string) error

	// Subscribe opens the presence feed for the group.
	Subscribe(ctx context.Context) (PresenceSubscription, error)
}
