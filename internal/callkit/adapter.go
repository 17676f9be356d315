package callkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Adapter fronts a Provider with the idempotence rules from the call
// lifecycle contract: reporting the same terminal state twice is a no-op,
// never an error, and a connected report after ended is swallowed. Duplicate
// reports are an expected product of racing transition triggers and must not
// reach the system UI.
type Adapter struct {
	log      *slog.Logger
	provider Provider
	clock    func() time.Time

	mu    sync.Mutex
	state map[string]*reportState // uuid -> what the provider has been told
}

// stateRetention bounds how long an ended entry is kept for duplicate
// suppression. Identifiers are never reused, and duplicate teardown triggers
// resolve within milliseconds, so aged entries only cost memory.
const stateRetention = time.Minute

type reportState struct {
	connected bool
	ended     bool
	endedAt   time.Time
}

func NewAdapter(provider Provider, log *slog.Logger) *Adapter {
	return &Adapter{
		log:      log,
		provider: provider,
		clock:    time.Now,
		state:    make(map[string]*reportState),
	}
}

func (a *Adapter) entry(uuid string) *reportState {
	a.sweepLocked(a.clock())
	s, ok := a.state[uuid]
	if !ok {
		s = &reportState{}
		a.state[uuid] = s
	}
	return s
}

// sweepLocked drops entries whose ended report has aged past retention.
// Caller holds a.mu.
func (a *Adapter) sweepLocked(now time.Time) {
	for id, s := range a.state {
		if s.ended && now.Sub(s.endedAt) > stateRetention {
			delete(a.state, id)
		}
	}
}

// ReportIncoming registers a new inbound call with the system UI.
func (a *Adapter) ReportIncoming(ctx context.Context, uuid, callerDisplay string, hasVideo bool) error {
	if err := a.provider.ReportIncoming(ctx, uuid, callerDisplay, hasVideo); err != nil {
		return fmt.Errorf("report incoming %s: %w", uuid, err)
	}
	a.mu.Lock()
	a.entry(uuid)
	a.mu.Unlock()
	return nil
}

// ReportOutgoing registers a new outbound call with the system UI. This runs
// before any signaling traffic so a rejection aborts the call cheaply.
func (a *Adapter) ReportOutgoing(ctx context.Context, uuid, calleeDisplay string) error {
	if err := a.provider.ReportOutgoing(ctx, uuid, calleeDisplay); err != nil {
		return fmt.Errorf("report outgoing %s: %w", uuid, err)
	}
	a.mu.Lock()
	a.entry(uuid)
	a.mu.Unlock()
	return nil
}

// UpdateCall pushes a cosmetic display update. Failures are logged, not
// propagated; display updates have no lifecycle effect.
func (a *Adapter) UpdateCall(ctx context.Context, uuid, displayName string) {
	if err := a.provider.UpdateCall(ctx, uuid, displayName); err != nil {
		a.log.Warn("provider display update failed", "uuid", uuid, "err", err)
	}
}

// ReportConnected marks the system UI entry as connected, exactly once.
func (a *Adapter) ReportConnected(ctx context.Context, uuid string) error {
	a.mu.Lock()
	s := a.entry(uuid)
	if s.connected || s.ended {
		a.mu.Unlock()
		return nil
	}
	s.connected = true
	a.mu.Unlock()

	if err := a.provider.ReportConnected(ctx, uuid); err != nil {
		return fmt.Errorf("report connected %s: %w", uuid, err)
	}
	return nil
}

// ReportEnded closes the system UI entry, exactly once.
func (a *Adapter) ReportEnded(ctx context.Context, uuid string, reason EndReason) error {
	a.mu.Lock()
	s := a.entry(uuid)
	if s.ended {
		a.mu.Unlock()
		return nil
	}
	s.ended = true
	s.endedAt = a.clock()
	a.mu.Unlock()

	if err := a.provider.ReportEnded(ctx, uuid, reason); err != nil {
		return fmt.Errorf("report ended %s: %w", uuid, err)
	}
	return nil
}

// ReportHeld reflects hold state into the system UI.
func (a *Adapter) ReportHeld(ctx context.Context, uuid string, onHold bool) error {
	a.mu.Lock()
	if s := a.entry(uuid); s.ended {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.provider.ReportHeld(ctx, uuid, onHold); err != nil {
		return fmt.Errorf("report held %s: %w", uuid, err)
	}
	return nil
}
