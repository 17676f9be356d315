package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"voicelink/internal/callkit"
	"voicelink/internal/history"
	"voicelink/internal/projection"
	"voicelink/internal/registry"
	"voicelink/internal/signaling"
)

// Application command surface plus the system-UI action handler. Commands
// fail fast with ErrNoSuchCall on unknown identifiers; provider actions are
// idempotent against stale identifiers because the system UI may replay a
// gesture it has already delivered.

// PlaceCallParams describes an outgoing call request from the application.
type PlaceCallParams struct {
	From   string
	To     string
	Params map[string]string
}

// PlaceCall mints a fresh identifier, registers the call with the system UI
// and only then opens signaling. A provider rejection aborts before any
// signaling traffic is sent.
func (o *Orchestrator) PlaceCall(ctx context.Context, params PlaceCallParams) (projection.CallInfo, error) {
	id := uuid.NewString()

	if err := o.ui.ReportOutgoing(ctx, id, params.To); err != nil {
		return projection.CallInfo{}, fmt.Errorf("orchestrator: place call: %w", err)
	}

	h, err := o.sig.Connect(ctx, signaling.ConnectParams{From: params.From, To: params.To, Params: params.Params})
	if err != nil {
		_ = o.ui.ReportEnded(ctx, id, callkit.EndReasonFailed)
		o.publishError(err)
		return projection.CallInfo{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	call := registry.Call{
		UUID:      id,
		Sid:       h.Sid(),
		From:      params.From,
		To:        params.To,
		State:     registry.CallStateConnecting,
		Direction: registry.DirectionOutgoing,
	}
	if err := o.reg.AddCall(call); err != nil {
		// A UUID collision within one process would be a programming error;
		// treat defensively-impossible registry refusal as connect failure.
		_ = h.Hangup(ctx)
		_ = o.ui.ReportEnded(ctx, id, callkit.EndReasonFailed)
		return projection.CallInfo{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	o.mu.Lock()
	o.handles[id] = h
	o.mu.Unlock()
	go o.pumpCallEvents(id, h)

	return *projection.ProjectCall(call), nil
}

// Answer accepts a pending invite.
func (o *Orchestrator) Answer(ctx context.Context, id string) error {
	return o.answer(ctx, id, false)
}

// answer implements the two-phase accept. lenient is set for system-UI
// answer gestures: a gesture for an identifier that no longer denotes a
// pending invite succeeds without side effects.
func (o *Orchestrator) answer(ctx context.Context, id string, lenient bool) error {
	o.mu.Lock()
	inv, pending := o.reg.Invite(id)
	if !pending {
		_, live := o.reg.Call(id)
		o.mu.Unlock()
		// Duplicate answer for an already promoted call is a no-op, and a
		// lenient gesture for a vanished identifier succeeds silently.
		if live || lenient {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}
	if o.answering[id] {
		// An accept round-trip is already in flight; this gesture resolves
		// with it.
		o.mu.Unlock()
		return nil
	}
	o.answering[id] = true
	o.mu.Unlock()

	h, err := o.sig.Accept(ctx, inv.CallSid)

	o.mu.Lock()
	delete(o.answering, id)
	o.mu.Unlock()

	if err != nil {
		if _, rerr := o.reg.RemoveInvite(id); rerr == nil {
			if inv.UIBacked {
				_ = o.ui.ReportEnded(ctx, id, callkit.EndReasonFailed)
			}
			o.publishError(err)
			o.appendHistory(ctx, history.Record{
				UUID: inv.UUID, CallSid: inv.CallSid, From: inv.From, To: inv.To,
				Direction: string(registry.DirectionIncoming),
				Outcome:   history.OutcomeFailed, ErrorMessage: err.Error(),
			})
		}
		return fmt.Errorf("%w: %v", ErrAcceptFailed, err)
	}

	call := registry.Call{
		UUID:             inv.UUID,
		Sid:              h.Sid(),
		From:             inv.From,
		To:               inv.To,
		State:            registry.CallStateConnecting,
		Direction:        registry.DirectionIncoming,
		CustomParameters: inv.CustomParameters,
	}

	if err := o.reg.PromoteInvite(id, call); err != nil {
		// A cancellation won the race: the invite is gone and the accept is
		// aborted. Tear the fresh signaling call back down.
		_ = h.Hangup(ctx)
		if lenient {
			return nil
		}
		return fmt.Errorf("%w: %s cancelled during accept", ErrNoSuchCall, id)
	}

	o.mu.Lock()
	o.handles[id] = h
	o.mu.Unlock()
	go o.pumpCallEvents(id, h)

	o.bus.Publish(projection.Event{
		Scope:      projection.ScopeVoice,
		Type:       projection.TypeCallInviteAccepted,
		CallInvite: projection.ProjectInvite(inv),
	})
	return nil
}

// Reject declines a pending invite.
func (o *Orchestrator) Reject(ctx context.Context, id string) error {
	inv, err := o.reg.RemoveInvite(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}

	if err := o.sig.Reject(ctx, inv.CallSid); err != nil {
		o.log.Warn("signaling reject failed", "uuid", id, "err", err)
	}
	if inv.UIBacked {
		_ = o.ui.ReportEnded(ctx, id, callkit.EndReasonDeclinedElsewhere)
	}

	o.bus.Publish(projection.Event{
		Scope:      projection.ScopeVoice,
		Type:       projection.TypeCallInviteRejected,
		CallInvite: projection.ProjectInvite(inv),
	})
	o.appendHistory(ctx, history.Record{
		UUID: inv.UUID, CallSid: inv.CallSid, From: inv.From, To: inv.To,
		Direction: string(registry.DirectionIncoming),
		Outcome:   history.OutcomeRejected,
	})
	return nil
}

// Hangup asks signaling to end a live call. Teardown commits when the
// disconnected event arrives.
func (o *Orchestrator) Hangup(ctx context.Context, id string) error {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}
	if err := h.Hangup(ctx); err != nil {
		return fmt.Errorf("orchestrator: hangup: %w", err)
	}
	return nil
}

// SendDigits plays DTMF tones into a live call. Digits are passed through
// to signaling verbatim; there is nothing to coalesce, every tone plays.
func (o *Orchestrator) SendDigits(ctx context.Context, id, digits string) error {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}
	if err := h.SendDigits(ctx, digits); err != nil {
		return fmt.Errorf("orchestrator: send digits: %w", err)
	}
	return nil
}

// SetMuted requests a mute change; see toggle for the coalescing rule.
func (o *Orchestrator) SetMuted(ctx context.Context, id string, muted bool) error {
	return o.toggle(ctx, id, toggleMute, muted)
}

// SetHeld requests a hold change.
func (o *Orchestrator) SetHeld(ctx context.Context, id string, onHold bool) error {
	return o.toggle(ctx, id, toggleHold, onHold)
}

/* ===================== PROVIDER ACTIONS ===================== */

// HandleProviderAction applies one system-UI gesture.
func (o *Orchestrator) HandleProviderAction(ctx context.Context, a callkit.Action) {
	var err error
	switch a.Kind {
	case callkit.ActionAnswer:
		err = o.answer(ctx, a.UUID, true)
	case callkit.ActionEnd:
		err = o.providerEnd(ctx, a.UUID)
	case callkit.ActionMute:
		err = o.toggle(ctx, a.UUID, toggleMute, a.Enabled)
	case callkit.ActionHold:
		err = o.toggle(ctx, a.UUID, toggleHold, a.Enabled)
	case callkit.ActionReset:
		o.Reset(ctx)
	default:
		o.log.Warn("unknown provider action", "kind", a.Kind)
	}
	if err != nil && !errors.Is(err, ErrNoSuchCall) {
		o.log.Warn("provider action failed", "kind", a.Kind, "uuid", a.UUID, "err", err)
	}
}

// providerEnd handles the system-UI end gesture: hangup for a live call,
// reject for a pending invite, and the registry entry goes away either way
// without waiting for signaling confirmation.
func (o *Orchestrator) providerEnd(ctx context.Context, id string) error {
	o.mu.Lock()
	h, hasHandle := o.handles[id]
	o.mu.Unlock()

	if hasHandle {
		if err := h.Hangup(ctx); err != nil {
			o.log.Warn("signaling hangup failed", "uuid", id, "err", err)
		}
		o.teardownCall(ctx, id, signaling.ReasonLocalHangup, nil)
		return nil
	}

	if inv, err := o.reg.RemoveInvite(id); err == nil {
		if rerr := o.sig.Reject(ctx, inv.CallSid); rerr != nil {
			o.log.Warn("signaling reject failed", "uuid", id, "err", rerr)
		}
		o.bus.Publish(projection.Event{
			Scope:      projection.ScopeVoice,
			Type:       projection.TypeCallInviteRejected,
			CallInvite: projection.ProjectInvite(inv),
		})
		o.appendHistory(ctx, history.Record{
			UUID: inv.UUID, CallSid: inv.CallSid, From: inv.From, To: inv.To,
			Direction: string(registry.DirectionIncoming),
			Outcome:   history.OutcomeRejected,
		})
		return nil
	}

	// Gone already; duplicate gestures are expected.
	return nil
}

// Reset tears down every call and invite, issuing signaling hangups for
// calls without waiting for per-call provider callbacks. Used when the
// system UI resets underneath us.
func (o *Orchestrator) Reset(ctx context.Context) {
	for _, c := range o.reg.Calls() {
		o.mu.Lock()
		h, ok := o.handles[c.UUID]
		o.mu.Unlock()
		if ok {
			if err := h.Hangup(ctx); err != nil {
				o.log.Warn("hangup during reset failed", "uuid", c.UUID, "err", err)
			}
		}
		o.teardownCall(ctx, c.UUID, signaling.ReasonLocalHangup, nil)
	}

	for _, inv := range o.reg.Invites() {
		if _, err := o.reg.RemoveInvite(inv.UUID); err != nil {
			continue
		}
		if err := o.sig.Reject(ctx, inv.CallSid); err != nil {
			o.log.Warn("reject during reset failed", "uuid", inv.UUID, "err", err)
		}
		if inv.UIBacked {
			_ = o.ui.ReportEnded(ctx, inv.UUID, callkit.EndReasonFailed)
		}
		o.bus.Publish(projection.Event{
			Scope: projection.ScopeVoice,
			Type:  projection.TypeCallInviteCancelled,
			CancelledInvite: projection.ProjectCancelledInvite(registry.CancelledInvite{
				UUID:             inv.UUID,
				CallSid:          inv.CallSid,
				From:             inv.From,
				To:               inv.To,
				CustomParameters: inv.CustomParameters,
			}),
		})
	}
}

/* ===================== MUTE/HOLD COALESCING ===================== */

type toggleKind int

const (
	toggleMute toggleKind = iota
	toggleHold
)

// togglePending queues at most one mute and one hold intent while a
// round-trip is in flight. Intents coalesce to the latest requested value so
// stale toggles are never executed.
type togglePending struct {
	inFlight   bool
	queuedMute *bool
	queuedHold *bool
}

func (o *Orchestrator) toggle(ctx context.Context, id string, kind toggleKind, value bool) error {
	o.mu.Lock()
	h, ok := o.handles[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}
	tp := o.toggles[id]
	if tp == nil {
		tp = &togglePending{}
		o.toggles[id] = tp
	}
	if tp.inFlight {
		if kind == toggleMute {
			tp.queuedMute = &value
		} else {
			tp.queuedHold = &value
		}
		o.mu.Unlock()
		return nil
	}
	tp.inFlight = true
	o.mu.Unlock()

	firstErr := o.applyToggle(ctx, id, h, kind, value)

	for {
		o.mu.Lock()
		var next *toggleKind
		var nextVal bool
		switch {
		case tp.queuedMute != nil:
			k := toggleMute
			next, nextVal = &k, *tp.queuedMute
			tp.queuedMute = nil
		case tp.queuedHold != nil:
			k := toggleHold
			next, nextVal = &k, *tp.queuedHold
			tp.queuedHold = nil
		default:
			tp.inFlight = false
			o.mu.Unlock()
			return firstErr
		}
		o.mu.Unlock()

		if err := o.applyToggle(ctx, id, h, *next, nextVal); err != nil {
			o.log.Warn("queued toggle failed", "uuid", id, "err", err)
		}
	}
}

// applyToggle runs one signaling round-trip and, only after it is
// acknowledged, commits the flag so UI and media never disagree.
func (o *Orchestrator) applyToggle(ctx context.Context, id string, h signaling.Handle, kind toggleKind, value bool) error {
	var err error
	if kind == toggleMute {
		err = h.Mute(ctx, value)
	} else {
		err = h.Hold(ctx, value)
	}
	if err != nil {
		return fmt.Errorf("orchestrator: toggle: %w", err)
	}

	_, uerr := o.reg.UpdateCall(id, func(c *registry.Call) {
		if kind == toggleMute {
			c.IsMuted = value
		} else {
			c.IsOnHold = value
		}
	})
	if uerr != nil {
		// The call ended while the round-trip was in flight.
		return nil
	}

	if kind == toggleHold {
		if err := o.ui.ReportHeld(ctx, id, value); err != nil {
			o.log.Warn("provider held report failed", "uuid", id, "err", err)
		}
	}
	return nil
}

func (o *Orchestrator) publishError(err error) {
	info := &projection.ErrorInfo{Message: err.Error()}
	var callErr *signaling.CallError
	if errors.As(err, &callErr) {
		info = projection.ProjectError(callErr)
	}
	o.bus.Publish(projection.Event{
		Scope: projection.ScopeVoice,
		Type:  projection.TypeError,
		Error: info,
	})
}
