package projection

import (
	"voicelink/internal/registry"
	"voicelink/internal/signaling"
)

// Pure transforms only. The orchestrator calls these inside its commit path,
// exactly once per committed transition; nothing here may touch the registry.

// ProjectCall maps a registry call snapshot onto the wire shape.
func ProjectCall(c registry.Call) *CallInfo {
	info := &CallInfo{
		UUID:             c.UUID,
		Sid:              c.Sid,
		From:             c.From,
		To:               c.To,
		State:            string(c.State),
		IsMuted:          c.IsMuted,
		IsOnHold:         c.IsOnHold,
		CustomParameters: c.CustomParameters,
	}
	if !c.ConnectedAt.IsZero() {
		info.InitialConnectedTimestamp = float64(c.ConnectedAt.UnixMilli())
	}
	return info
}

// ProjectInvite maps a pending invite onto the wire shape.
func ProjectInvite(inv registry.Invite) *InviteInfo {
	params := inv.CustomParameters
	if params == nil {
		params = map[string]string{}
	}
	return &InviteInfo{
		UUID:             inv.UUID,
		CallSid:          inv.CallSid,
		From:             inv.From,
		To:               inv.To,
		CustomParameters: params,
	}
}

// ProjectCancelledInvite maps a cancelled invite onto the wire shape.
func ProjectCancelledInvite(c registry.CancelledInvite) *CancelledInviteInfo {
	params := c.CustomParameters
	if params == nil {
		params = map[string]string{}
	}
	return &CancelledInviteInfo{
		UUID:             c.UUID,
		CallSid:          c.CallSid,
		From:             c.From,
		To:               c.To,
		CustomParameters: params,
	}
}

// ProjectError maps a signaling error onto the wire shape.
func ProjectError(err *signaling.CallError) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Code: err.Code, Message: err.Message}
}

// CallEvent builds a call-scope event envelope.
func CallEvent(eventType string, c registry.Call) Event {
	return Event{Scope: ScopeCall, Type: eventType, Call: ProjectCall(c)}
}

// VoiceEvent builds a voice-scope event envelope.
func VoiceEvent(eventType string) Event {
	return Event{Scope: ScopeVoice, Type: eventType}
}
