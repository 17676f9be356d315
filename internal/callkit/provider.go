// Package callkit is the boundary to the OS-level call UI. The Provider
// interface is what a platform binding implements; the Adapter translates
// registry transitions into provider reports and adds the idempotence
// guarantees the orchestrator relies on.
package callkit

import (
	"context"
	"errors"
)

// ErrProviderRejected means the system UI declined to register the call
// (Do-Not-Disturb, call limit, ...). The invite must still be surfaced to
// the application; only the system UI entry is missing.
var ErrProviderRejected = errors.New("callkit: provider rejected call")

// EndReason is the reason shown by the system UI when an entry is closed.
type EndReason string

const (
	EndReasonRemoteEnded       EndReason = "remoteEnded"
	EndReasonUnanswered        EndReason = "unanswered"
	EndReasonFailed            EndReason = "failed"
	EndReasonDeclinedElsewhere EndReason = "declinedElsewhere"
)

// Provider is the system call UI.
//
// Rules:
// - No orchestration logic in provider implementations; they only render.
// - Callbacks for user gestures are delivered as Actions, never as direct
//   calls back into the adapter.
type Provider interface {
	ReportIncoming(ctx context.Context, uuid, callerDisplay string, hasVideo bool) error
	ReportOutgoing(ctx context.Context, uuid, calleeDisplay string) error
	UpdateCall(ctx context.Context, uuid, displayName string) error
	ReportConnected(ctx context.Context, uuid string) error
	ReportEnded(ctx context.Context, uuid string, reason EndReason) error
	ReportHeld(ctx context.Context, uuid string, onHold bool) error
}

// ActionKind enumerates user gestures relayed from the system UI.
type ActionKind string

const (
	ActionAnswer ActionKind = "answer"
	ActionEnd    ActionKind = "end"
	ActionMute   ActionKind = "mute"
	ActionHold   ActionKind = "hold"
	ActionReset  ActionKind = "reset"
)

// Action is one user gesture. The provider delivers each gesture at most
// once; deduplication against registry state is the orchestrator's job.
type Action struct {
	Kind ActionKind
	UUID string

	// Enabled carries the requested value for mute and hold gestures.
	Enabled bool
}
