// Package orchestrator is the call lifecycle state machine. It is the only
// writer of the registry and the single place where push payloads,
// signaling events and system-UI actions meet application commands over
// the same call identifier.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicelink/internal/bridge"
	"voicelink/internal/callkit"
	"voicelink/internal/history"
	"voicelink/internal/projection"
	"voicelink/internal/pushdec"
	"voicelink/internal/registry"
	"voicelink/internal/signaling"
	"voicelink/internal/tokens"
)

var (
	// ErrNoSuchCall is returned for commands against an unknown or already
	// torn down identifier. Fails fast; no registry mutation.
	ErrNoSuchCall = errors.New("orchestrator: no such call")

	// ErrAcceptFailed means the signaling accept round-trip failed; the
	// invite has been removed and ended has been reported.
	ErrAcceptFailed = errors.New("orchestrator: accept failed")

	// ErrConnectFailed means placing an outgoing call failed at the
	// signaling layer after the system UI had been informed.
	ErrConnectFailed = errors.New("orchestrator: connect failed")
)

// DefaultHoldingTimeout bounds how long a cancellation that outran its
// invite is parked before being discarded.
const DefaultHoldingTimeout = 5 * time.Second

type Config struct {
	// HoldingTimeout for early cancellations; DefaultHoldingTimeout if zero.
	HoldingTimeout time.Duration
}

type Orchestrator struct {
	log     *slog.Logger
	cfg     Config
	reg     *registry.Registry
	sig     signaling.Client
	ui      *callkit.Adapter
	bus     bridge.Publisher
	decoder *pushdec.Decoder
	tokens  tokens.Store

	// hist is optional; persistence failures never block transitions.
	hist *history.Service

	clock func() time.Time

	// mu guards the maps below. It is never held across a signaling
	// round-trip: per-identifier work serializes through tentative registry
	// state, distinct identifiers proceed independently.
	mu         sync.Mutex
	handles    map[string]signaling.Handle // uuid -> live signaling call
	answering  map[string]bool             // uuid -> accept round-trip in flight
	toggles    map[string]*togglePending   // uuid -> coalesced mute/hold intents
	holdTimers map[string]*time.Timer      // callSid -> early-cancellation discard timer
}

func New(
	log *slog.Logger,
	cfg Config,
	sig signaling.Client,
	ui *callkit.Adapter,
	bus bridge.Publisher,
	decoder *pushdec.Decoder,
	tokenStore tokens.Store,
	hist *history.Service,
) *Orchestrator {
	if cfg.HoldingTimeout <= 0 {
		cfg.HoldingTimeout = DefaultHoldingTimeout
	}
	return &Orchestrator{
		log:        log,
		cfg:        cfg,
		reg:        registry.New(),
		sig:        sig,
		ui:         ui,
		bus:        bus,
		decoder:    decoder,
		tokens:     tokenStore,
		hist:       hist,
		clock:      time.Now,
		handles:    make(map[string]signaling.Handle),
		answering:  make(map[string]bool),
		toggles:    make(map[string]*togglePending),
		holdTimers: make(map[string]*time.Timer),
	}
}

/* ===================== PUSH INGRESS ===================== */

// HandlePush decodes and applies one push payload. Stale payloads are
// dropped without side effects; malformed payloads are projected as errors
// and returned to the caller.
func (o *Orchestrator) HandlePush(ctx context.Context, raw []byte) error {
	var epoch int64
	if o.tokens != nil {
		_, e, err := o.tokens.Current(ctx)
		if err != nil && !errors.Is(err, tokens.ErrNoToken) {
			return fmt.Errorf("orchestrator: read token epoch: %w", err)
		}
		epoch = e
	}

	msg, err := o.decoder.Decode(raw, epoch)
	if err != nil {
		if errors.Is(err, pushdec.ErrStalePayload) {
			o.log.Debug("dropping stale push", "err", err)
			return err
		}
		o.bus.Publish(projection.Event{
			Scope: projection.ScopeVoice,
			Type:  projection.TypeError,
			Error: &projection.ErrorInfo{Message: err.Error()},
		})
		return err
	}

	switch m := msg.(type) {
	case pushdec.NewInvite:
		return o.handleInvitePush(ctx, m)
	case pushdec.Cancellation:
		return o.handleCancellationPush(ctx, m)
	default:
		return fmt.Errorf("orchestrator: unhandled push message %T", msg)
	}
}

// HandleTokenPush applies a device-token rotation delivered by the push
// transport.
func (o *Orchestrator) HandleTokenPush(ctx context.Context, raw []byte) error {
	rot, err := pushdec.DecodeTokenUpdate(raw)
	if err != nil {
		return err
	}
	return o.RegisterToken(ctx, rot.Token)
}

func (o *Orchestrator) handleInvitePush(ctx context.Context, m pushdec.NewInvite) error {
	// A cancellation may have outrun this invite. If one is parked, both
	// records die here and the call never surfaces.
	if held, ok := o.reg.TakeHeldCancellation(m.CallSid); ok {
		o.stopHoldTimer(m.CallSid)
		o.log.Info("invite matched early cancellation, suppressing", "call_sid", m.CallSid, "uuid", held.UUID)
		return nil
	}

	inv := registry.Invite{
		UUID:             uuid.NewString(),
		CallSid:          m.CallSid,
		From:             m.From,
		To:               m.To,
		CustomParameters: m.CustomParameters,
		UIBacked:         true,
		ReceivedAt:       o.clock(),
	}

	if err := o.ui.ReportIncoming(ctx, inv.UUID, inv.From, false); err != nil {
		if !errors.Is(err, callkit.ErrProviderRejected) {
			return fmt.Errorf("orchestrator: report incoming: %w", err)
		}
		// The system UI refused the call. The invite still goes to the
		// application, which may render its own UI.
		inv.UIBacked = false
		o.log.Warn("provider rejected incoming call, surfacing invite without system UI", "uuid", inv.UUID, "err", err)
	}

	if err := o.reg.AddInvite(inv); err != nil {
		if inv.UIBacked {
			_ = o.ui.ReportEnded(ctx, inv.UUID, callkit.EndReasonFailed)
		}
		return fmt.Errorf("orchestrator: register invite: %w", err)
	}

	// A cancellation that arrived during the provider round-trip above found
	// no SID to match and parked itself. Re-check now that the invite is
	// committed; a match tears the invite down before it surfaces.
	if held, ok := o.reg.TakeHeldCancellation(m.CallSid); ok {
		o.stopHoldTimer(m.CallSid)
		if removed, err := o.reg.RemoveInvite(inv.UUID); err == nil {
			if removed.UIBacked {
				if rerr := o.ui.ReportEnded(ctx, removed.UUID, callkit.EndReasonUnanswered); rerr != nil {
					o.log.Warn("provider ended report failed", "uuid", removed.UUID, "err", rerr)
				}
			}
			o.appendHistory(ctx, history.Record{
				UUID:      removed.UUID,
				CallSid:   removed.CallSid,
				From:      removed.From,
				To:        removed.To,
				Direction: string(registry.DirectionIncoming),
				Outcome:   history.OutcomeCancelled,
			})
		}
		o.log.Info("invite matched in-flight cancellation, suppressing", "call_sid", m.CallSid, "uuid", held.UUID)
		return nil
	}

	o.bus.Publish(projection.Event{
		Scope:      projection.ScopeVoice,
		Type:       projection.TypeCallInvite,
		CallInvite: projection.ProjectInvite(inv),
	})
	return nil
}

func (o *Orchestrator) handleCancellationPush(ctx context.Context, m pushdec.Cancellation) error {
	// Park-or-resolve is atomic on the SID key so a cancellation can never
	// slip between an invite's registration and its index entry.
	id, parked := o.reg.ParkCancellation(registry.CancelledInvite{UUID: uuid.NewString(), CallSid: m.CallSid})
	if parked {
		// Cancellation outran its invite: held for a bounded wait.
		o.startHoldTimer(m.CallSid)
		return nil
	}

	inv, err := o.reg.RemoveInvite(id)
	if err != nil {
		// Already promoted (or mid-promotion and the accept will lose the
		// race at commit). A cancellation observed after promotion is a
		// no-op: the call is live.
		o.log.Debug("cancellation after promotion ignored", "uuid", id, "call_sid", m.CallSid)
		return nil
	}

	cancelled := registry.CancelledInvite{
		UUID:             inv.UUID,
		CallSid:          inv.CallSid,
		From:             inv.From,
		To:               inv.To,
		CustomParameters: inv.CustomParameters,
	}

	if inv.UIBacked {
		if err := o.ui.ReportEnded(ctx, inv.UUID, callkit.EndReasonUnanswered); err != nil {
			o.log.Warn("provider ended report failed", "uuid", inv.UUID, "err", err)
		}
	}

	o.bus.Publish(projection.Event{
		Scope:           projection.ScopeVoice,
		Type:            projection.TypeCallInviteCancelled,
		CancelledInvite: projection.ProjectCancelledInvite(cancelled),
	})
	o.appendHistory(ctx, history.Record{
		UUID:      inv.UUID,
		CallSid:   inv.CallSid,
		From:      inv.From,
		To:        inv.To,
		Direction: string(registry.DirectionIncoming),
		Outcome:   history.OutcomeCancelled,
	})
	return nil
}

func (o *Orchestrator) startHoldTimer(callSid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.holdTimers[callSid]; exists {
		return
	}
	o.holdTimers[callSid] = time.AfterFunc(o.cfg.HoldingTimeout, func() {
		o.mu.Lock()
		delete(o.holdTimers, callSid)
		o.mu.Unlock()
		if _, ok := o.reg.TakeHeldCancellation(callSid); ok {
			o.log.Debug("discarding unmatched early cancellation", "call_sid", callSid)
		}
	})
}

func (o *Orchestrator) stopHoldTimer(callSid string) {
	o.mu.Lock()
	t, ok := o.holdTimers[callSid]
	delete(o.holdTimers, callSid)
	o.mu.Unlock()
	if ok {
		t.Stop()
	}
}

/* ===================== TOKEN REGISTRATION ===================== */

// RegisterToken binds the device push token to the signaling account and
// rotates the local epoch.
func (o *Orchestrator) RegisterToken(ctx context.Context, token []byte) error {
	if err := o.sig.Register(ctx, token); err != nil {
		return fmt.Errorf("orchestrator: register token: %w", err)
	}
	if o.tokens != nil {
		if _, err := o.tokens.Save(ctx, token); err != nil {
			return fmt.Errorf("orchestrator: persist token: %w", err)
		}
	}
	o.bus.Publish(projection.VoiceEvent(projection.TypeRegistered))
	return nil
}

// UnregisterToken removes the push binding.
func (o *Orchestrator) UnregisterToken(ctx context.Context) error {
	var token []byte
	if o.tokens != nil {
		t, _, err := o.tokens.Current(ctx)
		if err != nil && !errors.Is(err, tokens.ErrNoToken) {
			return fmt.Errorf("orchestrator: read token: %w", err)
		}
		token = t
	}
	if err := o.sig.Unregister(ctx, token); err != nil {
		return fmt.Errorf("orchestrator: unregister token: %w", err)
	}
	if o.tokens != nil {
		if err := o.tokens.Clear(ctx); err != nil {
			return fmt.Errorf("orchestrator: clear token: %w", err)
		}
	}
	o.bus.Publish(projection.VoiceEvent(projection.TypeUnregistered))
	return nil
}

/* ===================== SNAPSHOTS ===================== */

// Calls returns projected snapshots of all live calls.
func (o *Orchestrator) Calls() []projection.CallInfo {
	calls := o.reg.Calls()
	out := make([]projection.CallInfo, 0, len(calls))
	for _, c := range calls {
		out = append(out, *projection.ProjectCall(c))
	}
	return out
}

// Invites returns projected snapshots of all pending invites.
func (o *Orchestrator) Invites() []projection.InviteInfo {
	invs := o.reg.Invites()
	out := make([]projection.InviteInfo, 0, len(invs))
	for _, inv := range invs {
		out = append(out, *projection.ProjectInvite(inv))
	}
	return out
}

// CallStats fetches raw metrics for a live call and projects the report.
func (o *Orchestrator) CallStats(ctx context.Context, id string) ([]projection.StatsReport, error) {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchCall, id)
	}
	raw, err := h.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fetch stats: %w", err)
	}
	return projection.ProjectStats(raw), nil
}

func (o *Orchestrator) appendHistory(ctx context.Context, rec history.Record) {
	if o.hist == nil {
		return
	}
	if err := o.hist.Append(ctx, rec); err != nil {
		o.log.Warn("history append failed", "uuid", rec.UUID, "err", err)
	}
}
