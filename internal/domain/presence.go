package domain

import "time"

// Device roles. RoleNone means the operator has not picked a role yet.
// RoleCoordinator is the single privileged role; its exclusivity is
// enforced cooperatively through presence, not by the backend.
const (
	RoleNone        = ""
	RoleCoordinator = "Bout Coordinator"
)

// StationRoles lists the selectable non-coordinator roles in display
// order.
var StationRoles = []string{StationMerch, StationBeer, StationTickets, StationProduction}

// ValidRole reports whether role is empty, a selectable station role,
// or the coordinator role. The COORDINATOR station name is not a role;
// it only appears on log messages.
func ValidRole(role string) bool {
	switch role {
	case RoleNone, RoleCoordinator, StationMerch, StationBeer, StationTickets, StationProduction:
		return true
	}
	return false
}

// RoleStation maps a device role to the station name stamped on its
// outgoing log messages.
func RoleStation(role string) string {
	if role == RoleCoordinator {
		return StationCoordinator
	}
	return role
}

// PresenceRecord is one device's announced state in the shared
// presence room. Records are ephemeral: they exist only while the
// device's realtime connection is open and disappear when it drops.
type PresenceRecord struct {
	DeviceID    string    `json:"device_id"`
	Role        string    `json:"role"`
	AnnouncedAt time.Time `json:"announced_at"`
}
