package orchestrator

import (
	"context"
	"errors"
	"time"

	"voicelink/internal/callkit"
	"voicelink/internal/history"
	"voicelink/internal/projection"
	"voicelink/internal/registry"
	"voicelink/internal/signaling"
)

// pumpCallEvents drains one call's signaling event stream. Events for a
// single identifier apply in arrival order; the pump exits when the stream
// closes after a terminal event.
func (o *Orchestrator) pumpCallEvents(id string, h signaling.Handle) {
	for ev := range h.Events() {
		o.handleSignalingEvent(context.Background(), id, ev)
	}
}

func (o *Orchestrator) handleSignalingEvent(ctx context.Context, id string, ev signaling.Event) {
	switch ev.Kind {
	case signaling.EventRinging:
		o.transitionState(ctx, id, registry.CallStateRinging, projection.TypeCallRinging, nil)

	case signaling.EventConnected:
		call, err := o.reg.UpdateCall(id, func(c *registry.Call) {
			c.State = registry.CallStateConnected
			if ev.Sid != "" {
				c.Sid = ev.Sid
			}
			if c.ConnectedAt.IsZero() {
				c.ConnectedAt = o.clock()
			}
		})
		if err != nil {
			return
		}
		if err := o.ui.ReportConnected(ctx, id); err != nil {
			o.log.Warn("provider connected report failed", "uuid", id, "err", err)
		}
		o.bus.Publish(projection.CallEvent(projection.TypeCallConnected, call))

	case signaling.EventReconnecting:
		// Transient: a reconnecting call is still a live call. The system UI
		// entry stays up; only a terminal disconnect ends it.
		o.transitionState(ctx, id, registry.CallStateReconnecting, projection.TypeCallReconnecting, ev.Err)

	case signaling.EventReconnected:
		o.transitionState(ctx, id, registry.CallStateConnected, projection.TypeCallReconnected, nil)

	case signaling.EventDisconnected:
		reason := ev.Reason
		if reason == "" {
			reason = signaling.ReasonRemoteHangup
		}
		o.teardownCall(ctx, id, reason, ev.Err)

	case signaling.EventConnectFailure:
		o.teardownCall(ctx, id, signaling.ReasonFailed, ev.Err)

	case signaling.EventQualityWarnings:
		call, ok := o.reg.Call(id)
		if !ok {
			return
		}
		e := projection.CallEvent(projection.TypeCallQualityWarningsChanged, call)
		e.CurrentWarnings = ev.CurrentWarnings
		e.PreviousWarnings = ev.PreviousWarnings
		o.bus.Publish(e)

	default:
		o.log.Warn("unknown signaling event", "uuid", id, "kind", ev.Kind)
	}
}

func (o *Orchestrator) transitionState(_ context.Context, id string, state registry.CallState, eventType string, sigErr *signaling.CallError) {
	call, err := o.reg.UpdateCall(id, func(c *registry.Call) { c.State = state })
	if err != nil {
		// Raced with teardown; the second trigger observes gone and stops.
		return
	}
	e := projection.CallEvent(eventType, call)
	e.Error = projection.ProjectError(sigErr)
	o.bus.Publish(e)
}

// teardownCall is the single teardown sequence for a live call. Concurrent
// triggers (signaling disconnect, system-UI end, reset) all funnel here; the
// registry removal decides the winner and the losers return without
// reporting anything.
func (o *Orchestrator) teardownCall(ctx context.Context, id string, reason signaling.DisconnectReason, sigErr *signaling.CallError) {
	call, err := o.reg.RemoveCall(id)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			o.log.Warn("teardown failed", "uuid", id, "err", err)
		}
		return
	}

	o.mu.Lock()
	delete(o.handles, id)
	delete(o.toggles, id)
	o.mu.Unlock()

	call.State = registry.CallStateDisconnected

	eventType := projection.TypeCallDisconnected
	if reason == signaling.ReasonFailed {
		eventType = projection.TypeCallConnectFailure
		if !call.ConnectedAt.IsZero() {
			// The call had been up; a mid-call fatal error is still a
			// disconnect as far as the application is concerned.
			eventType = projection.TypeCallDisconnected
		}
	}
	e := projection.CallEvent(eventType, call)
	e.Error = projection.ProjectError(sigErr)
	o.bus.Publish(e)

	if err := o.ui.ReportEnded(ctx, id, endReasonFor(reason)); err != nil {
		o.log.Warn("provider ended report failed", "uuid", id, "err", err)
	}

	rec := history.Record{
		UUID:      call.UUID,
		CallSid:   call.Sid,
		From:      call.From,
		To:        call.To,
		Direction: string(call.Direction),
		Outcome:   history.OutcomeCompleted,
	}
	if !call.ConnectedAt.IsZero() {
		rec.DurationSeconds = int(o.clock().Sub(call.ConnectedAt) / time.Second)
	}
	if reason == signaling.ReasonFailed {
		rec.Outcome = history.OutcomeFailed
		if sigErr != nil {
			rec.ErrorMessage = sigErr.Message
		}
	}
	o.appendHistory(ctx, rec)
}

func endReasonFor(reason signaling.DisconnectReason) callkit.EndReason {
	switch reason {
	case signaling.ReasonDeclinedElsewhere:
		return callkit.EndReasonDeclinedElsewhere
	case signaling.ReasonFailed:
		return callkit.EndReasonFailed
	default:
		return callkit.EndReasonRemoteEnded
	}
}
