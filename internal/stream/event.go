package stream

import (
	"encoding/json"

	"factory-floor-backend/internal/snapshot"
)

// Event types crossing the wire to a client.
const (
	EventInitial = "initial"
	EventInsert  = "insert"
	EventUpdate  = "update"
	EventDelete  = "delete"
	EventError   = "error"
)

// Stable machine-readable error codes. Clients key their reconnect handling
// off these, so they must not change.
const (
	CodeInitialFetchFailed    = "INITIAL_FETCH_FAILED"
	CodeRefetchFailed         = "REFETCH_FAILED"
	CodeChannelClosed         = "CHANNEL_CLOSED"
	CodeSessionsChannelClosed = "SESSIONS_CHANNEL_CLOSED"
)

// Event is one frame pushed to a client. Each snapshot it carries is
// authoritative and complete; clients replace, never merge.
type Event struct {
	Type      string                     `json:"type"`
	Sessions  []snapshot.SessionSnapshot `json:"sessions,omitempty"`
	Session   *snapshot.SessionSnapshot  `json:"session,omitempty"`
	SessionID string                     `json:"sessionId,omitempty"`
	Message   string                     `json:"message,omitempty"`
}

// MarshalJSON keeps the sessions array present on initial frames even when
// the watched set is empty; clients key replace-all semantics off it.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Type == EventInitial {
		return json.Marshal(struct {
			Type     string                     `json:"type"`
			Sessions []snapshot.SessionSnapshot `json:"sessions"`
		}{e.Type, e.Sessions})
	}
	return json.Marshal(plain(e))
}

// Initial wraps the first full snapshot of a channel.
func Initial(snaps []snapshot.SessionSnapshot) Event {
	if snaps == nil {
		snaps = []snapshot.SessionSnapshot{}
	}
	return Event{Type: EventInitial, Sessions: snaps}
}

// Insert announces an entity newly in the watched set.
func Insert(snap snapshot.SessionSnapshot) Event {
	return Event{Type: EventInsert, Session: &snap}
}

// Update announces a changed entity already in the watched set.
func Update(snap snapshot.SessionSnapshot) Event {
	return Event{Type: EventUpdate, Session: &snap}
}

// Delete announces an entity that left the watched set.
func Delete(sessionID string) Event {
	return Event{Type: EventDelete, SessionID: sessionID}
}

// Error carries a terminal error code; the channel closes after sending it.
func Error(code string) Event {
	return Event{Type: EventError, Message: code}
}
