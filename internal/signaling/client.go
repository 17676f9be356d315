// Package signaling wraps the voice signaling backend. It owns call setup
// and teardown at the protocol level; the orchestrator only consumes the
// events it emits.
package signaling

import "context"

// ConnectParams describes an outgoing call request.
type ConnectParams struct {
	From   string
	To     string
	Params map[string]string
}

// Handle is a live signaling-level call. Operations are round-trips to the
// backend; Events delivers the per-call event stream in arrival order until
// the call reaches a terminal event, after which the channel is closed.
type Handle interface {
	Sid() string
	Events() <-chan Event

	Hangup(ctx context.Context) error
	Mute(ctx context.Context, muted bool) error
	Hold(ctx context.Context, onHold bool) error
	SendDigits(ctx context.Context, digits string) error
	Stats(ctx context.Context) ([]StatsReport, error)
}

// Client is the signaling backend boundary.
type Client interface {
	// Connect places an outgoing call.
	Connect(ctx context.Context, params ConnectParams) (Handle, error)

	// Accept answers a pushed invite identified by its call SID.
	Accept(ctx context.Context, callSid string) (Handle, error)

	// Reject declines a pushed invite.
	Reject(ctx context.Context, callSid string) error

	// Register and Unregister bind the device push token to the signaling
	// account so invites reach this device.
	Register(ctx context.Context, token []byte) error
	Unregister(ctx context.Context, token []byte) error
}
