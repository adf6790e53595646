package presence

import "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"

// OtherCoordinatorActive reports whether any device other than self
// currently announces the coordinator role. It is a pure function over
// a membership snapshot, re-evaluated on every sync and on local role
// change. The check is advisory only. Announcements are eventually
// consistent and unordered, so two devices announcing near
// simultaneously can both see false for a short window. That race is
// accepted because there is no lock service to consult, and the
// selection UI treats the result as "disable the option", not as a
// guarantee.
func OtherCoordinatorActive(members []domain.PresenceRecord, selfID string) bool {
	for _, rec := range members {
		if rec.DeviceID == selfID {
			continue
		}
		if rec.Role == domain.RoleCoordinator {
			return true
		}
	}
	return false
}
