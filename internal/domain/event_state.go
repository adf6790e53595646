package domain

// DefaultCapacity is used when the backend has no event_state row yet.
// A missing row is treated as "use defaults", not as an error.
const DefaultCapacity = 300

// EventState is the shared snapshot record every station mirrors:
// attendee count, venue capacity and the venue WiFi credential pair.
// The backend row is the authoritative copy; each device holds a
// locally cached, possibly stale mirror.
type EventState struct {
	DoorCount    int    `json:"door_count"`
	Capacity     int    `json:"capacity"`
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_pass"`
}

// DefaultEventState returns the state used before the first successful
// snapshot fetch or when the backend row is absent.
func DefaultEventState() EventState {
	return EventState{DoorCount: 0, Capacity: DefaultCapacity}
}

// OccupancyPercent returns the door count as a percentage of capacity,
// truncated to an integer. Capacity is always >= 1 for a valid state,
// but a zero value is tolerated to keep the method total.
func (s EventState) OccupancyPercent() int {
	if s.Capacity <= 0 {
		return 0
	}
	return s.DoorCount * 100 / s.Capacity
}

// OverCapacity reports whether the door count exceeds capacity. The
// count is never clamped to capacity; the flag exists so the UI can
// warn while the system keeps counting.
func (s EventState) OverCapacity() bool {
	return s.DoorCount > s.Capacity
}

// SnapshotChange carries the fields present in a snapshot-update
// notification. Nil fields were not part of the update and must leave
// the local mirror untouched; present fields are last-writer-wins
// authoritative values, not deltas.
type SnapshotChange struct {
	DoorCount    *int    `json:"door_count,omitempty"`
	Capacity     *int    `json:"capacity,omitempty"`
	WifiSSID     *string `json:"wifi_ssid,omitempty"`
	WifiPassword *string `json:"wifi_pass,omitempty"`
}

// IsEmpty reports whether the change carries no fields at all.
func (c SnapshotChange) IsEmpty() bool {
	return c.DoorCount == nil && c.Capacity == nil && c.WifiSSID == nil && c.WifiPassword == nil
}

// ApplyTo overwrites the fields present in the change on the given
// state. Applying the same change twice is idempotent.
func (c SnapshotChange) ApplyTo(s *EventState) {
	if c.DoorCount != nil {
		s.DoorCount = *c.DoorCount
	}
	if c.Capacity != nil {
		s.Capacity = *c.Capacity
	}
	if c.WifiSSID != nil {
		s.WifiSSID = *c.WifiSSID
	}
	if c.WifiPassword != nil {
		s.WifiPassword = *c.WifiPassword
	}
}
