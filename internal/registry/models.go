package registry

import "time"

// CallState mirrors the signaling-level lifecycle of a live call.
type CallState string

const (
	CallStateConnecting   CallState = "connecting"
	CallStateRinging      CallState = "ringing"
	CallStateConnected    CallState = "connected"
	CallStateReconnecting CallState = "reconnecting"
	CallStateDisconnected CallState = "disconnected"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Invite is an unaccepted inbound call offer.
//
// UUID is minted locally when the push is decoded; CallSid is the
// signaling-assigned identifier carried by the push payload. Both are kept
// because cancellations arrive keyed by CallSid, before any local UUID is
// known to the remote side.
type Invite struct {
	UUID    string
	CallSid string
	From    string
	To      string

	CustomParameters map[string]string

	// UIBacked is false when the Telephony UI Provider refused to register
	// the call. The invite is still surfaced to the application, which may
	// render its own UI and answer directly.
	UIBacked bool

	ReceivedAt time.Time
}

// CancelledInvite records an invite withdrawn before acceptance.
type CancelledInvite struct {
	UUID    string
	CallSid string
	From    string
	To      string

	CustomParameters map[string]string
}

// Call is an active or terminating call.
type Call struct {
	UUID string

	// Sid is assigned by the signaling layer once connecting starts.
	Sid string

	From string
	To   string

	State     CallState
	Direction Direction

	IsMuted  bool
	IsOnHold bool

	CustomParameters map[string]string

	// ConnectedAt is zero until the first connected event.
	ConnectedAt time.Time
}
