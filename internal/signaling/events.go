package signaling

import "fmt"

type EventKind string

const (
	EventRinging         EventKind = "ringing"
	EventConnected       EventKind = "connected"
	EventReconnecting    EventKind = "reconnecting"
	EventReconnected     EventKind = "reconnected"
	EventDisconnected    EventKind = "disconnected"
	EventConnectFailure  EventKind = "connectFailure"
	EventQualityWarnings EventKind = "qualityWarningsChanged"
)

// DisconnectReason classifies terminal disconnects as reported by the
// backend.
type DisconnectReason string

const (
	ReasonLocalHangup       DisconnectReason = "localHangup"
	ReasonRemoteHangup      DisconnectReason = "remoteHangup"
	ReasonDeclinedElsewhere DisconnectReason = "declinedElsewhere"
	ReasonFailed            DisconnectReason = "failed"
)

// CallError is a signaling-level failure attached to connectFailure,
// reconnecting and abnormal disconnected events.
type CallError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CallError) Error() string {
	return fmt.Sprintf("signaling: error %d: %s", e.Code, e.Message)
}

// Event is one entry of a per-call event stream.
type Event struct {
	Kind EventKind
	Sid  string

	// Reason is set on disconnected events.
	Reason DisconnectReason

	// Err is set on connectFailure, reconnecting and failed disconnects.
	Err *CallError

	// Quality warning snapshots, set on qualityWarningsChanged.
	CurrentWarnings  []string
	PreviousWarnings []string
}
