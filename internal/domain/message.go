package domain

import (
	"strings"
	"time"
)

// Station names as they appear in the message log. COORDINATOR is the
// log name for messages sent from the coordinator console.
const (
	StationMerch       = "MERCH"
	StationBeer        = "BEER"
	StationTickets     = "TICKETS"
	StationProduction  = "PRODUCTION"
	StationCoordinator = "COORDINATOR"
)

// MessageTimeLayout is the display format stamped on a message by the
// sending device at send time. It is a display string, never parsed
// back; ordering comes from the backend-assigned ID.
const MessageTimeLayout = "15:04"

// Message is one entry in the append-only station log. ID is assigned
// by the backend on insert and is monotonic per insertion; a zero ID
// means the message has not been accepted by the backend yet.
// Messages are immutable once created; the only mutation anywhere is
// the bulk delete performed by a full reset.
type Message struct {
	ID      uint64 `json:"id"`
	Time    string `json:"time"`
	Station string `json:"station"`
	Text    string `json:"text"`
}

// NewMessage builds an outgoing message for the given station,
// stamping the sender's local time. Returns false when the trimmed
// text is empty.
func NewMessage(station, text string, now time.Time) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}
	return Message{
		Time:    now.Format(MessageTimeLayout),
		Station: station,
		Text:    text,
	}, true
}

// ValidStation reports whether name is one of the known log stations.
func ValidStation(name string) bool {
	switch name {
	case StationMerch, StationBeer, StationTickets, StationProduction, StationCoordinator:
		return true
	}
	return false
}
