// Package projection converts registry records and transition metadata into
// the flat payloads delivered to the embedding application. Field names and
// event type strings are contract-significant; downstream consumers match on
// them verbatim.
package projection

// Event scopes.
const (
	ScopeVoice = "scopeVoice"
	ScopeCall  = "scopeCall"
)

// Voice-scope event types.
const (
	TypeCallInvite          = "voiceEventCallInvite"
	TypeCallInviteAccepted  = "voiceEventCallInviteAccepted"
	TypeCallInviteRejected  = "voiceEventCallInviteRejected"
	TypeCallInviteCancelled = "voiceEventCallInviteCancelled"
	TypeRegistered          = "voiceEventRegistered"
	TypeUnregistered        = "voiceEventUnregistered"
	TypeError               = "voiceEventError"
)

// Call-scope event types.
const (
	TypeCallRinging                = "callEventRinging"
	TypeCallConnected              = "callEventConnected"
	TypeCallReconnecting           = "callEventReconnecting"
	TypeCallReconnected            = "callEventReconnected"
	TypeCallDisconnected           = "callEventDisconnected"
	TypeCallConnectFailure         = "callEventConnectFailure"
	TypeCallQualityWarningsChanged = "callEventQualityWarningsChanged"
)

// CallInfo is the projected shape of a live call.
type CallInfo struct {
	UUID     string `json:"uuid"`
	Sid      string `json:"sid,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
	State    string `json:"state"`
	IsMuted  bool   `json:"isMuted"`
	IsOnHold bool   `json:"isOnHold"`

	CustomParameters map[string]string `json:"customParameters,omitempty"`

	// InitialConnectedTimestamp is unix milliseconds of the first connected
	// transition; zero (omitted) before that.
	InitialConnectedTimestamp float64 `json:"initialConnectedTimestamp,omitempty"`
}

// InviteInfo is the projected shape of a pending invite.
type InviteInfo struct {
	UUID             string            `json:"uuid"`
	CallSid          string            `json:"callSid"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	CustomParameters map[string]string `json:"customParameters"`
}

// CancelledInviteInfo matches InviteInfo by contract.
type CancelledInviteInfo struct {
	UUID             string            `json:"uuid"`
	CallSid          string            `json:"callSid"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	CustomParameters map[string]string `json:"customParameters"`
}

// ErrorInfo carries a signaling or lifecycle failure to the application.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Event is the envelope fanned out over the event bridge.
type Event struct {
	Scope string `json:"scope"`
	Type  string `json:"type"`

	Call            *CallInfo            `json:"call,omitempty"`
	CallInvite      *InviteInfo          `json:"callInvite,omitempty"`
	CancelledInvite *CancelledInviteInfo `json:"cancelledCallInvite,omitempty"`
	Error           *ErrorInfo           `json:"error,omitempty"`

	CurrentWarnings  []string `json:"currentWarnings,omitempty"`
	PreviousWarnings []string `json:"previousWarnings,omitempty"`
}
