package callkit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// countingProvider records how many times each report reached the "system UI".
type countingProvider struct {
	mu        sync.Mutex
	incoming  int
	connected int
	ended     int
	held      int
	rejectNew bool
}

func (p *countingProvider) ReportIncoming(_ context.Context, _, _ string, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectNew {
		return ErrProviderRejected
	}
	p.incoming++
	return nil
}

func (p *countingProvider) ReportOutgoing(_ context.Context, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectNew {
		return ErrProviderRejected
	}
	p.incoming++
	return nil
}

func (p *countingProvider) UpdateCall(_ context.Context, _, _ string) error { return nil }

func (p *countingProvider) ReportConnected(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected++
	return nil
}

func (p *countingProvider) ReportEnded(_ context.Context, _ string, _ EndReason) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended++
	return nil
}

func (p *countingProvider) ReportHeld(_ context.Context, _ string, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held++
	return nil
}

func TestAdapter_TerminalReportsAreIdempotent(t *testing.T) {
	prov := &countingProvider{}
	a := NewAdapter(prov, slog.Default())
	ctx := context.Background()

	if err := a.ReportIncoming(ctx, "u1", "+1555", false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := a.ReportConnected(ctx, "u1"); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := a.ReportEnded(ctx, "u1", EndReasonRemoteEnded); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}

	if prov.connected != 1 {
		t.Fatalf("expected exactly one connected report, got %d", prov.connected)
	}
	if prov.ended != 1 {
		t.Fatalf("expected exactly one ended report, got %d", prov.ended)
	}
}

func TestAdapter_ConnectedAfterEndedIsSwallowed(t *testing.T) {
	prov := &countingProvider{}
	a := NewAdapter(prov, slog.Default())
	ctx := context.Background()

	if err := a.ReportEnded(ctx, "u1", EndReasonFailed); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := a.ReportConnected(ctx, "u1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := a.ReportHeld(ctx, "u1", true); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if prov.connected != 0 || prov.held != 0 {
		t.Fatalf("reports after ended must not reach provider")
	}
}

func TestAdapter_EndedEntriesAreSweptAfterRetention(t *testing.T) {
	prov := &countingProvider{}
	a := NewAdapter(prov, slog.Default())
	now := time.Now()
	a.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := a.ReportIncoming(ctx, "u1", "+1555", false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := a.ReportEnded(ctx, "u1", EndReasonRemoteEnded); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Within retention duplicates stay suppressed.
	if err := a.ReportEnded(ctx, "u1", EndReasonRemoteEnded); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if prov.ended != 1 {
		t.Fatalf("expected one ended report within retention, got %d", prov.ended)
	}

	now = now.Add(stateRetention + time.Second)
	if err := a.ReportIncoming(ctx, "u2", "+1666", false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	a.mu.Lock()
	_, kept := a.state["u1"]
	a.mu.Unlock()
	if kept {
		t.Fatalf("ended entry must be swept once retention passed")
	}
}

func TestAdapter_RejectionPropagates(t *testing.T) {
	prov := &countingProvider{rejectNew: true}
	a := NewAdapter(prov, slog.Default())

	err := a.ReportIncoming(context.Background(), "u1", "+1555", false)
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

type fakeCap struct {
	mu    sync.Mutex
	used  int
	limit int
}

func (c *fakeCap) Acquire(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used >= c.limit {
		return false, nil
	}
	c.used++
	return true, nil
}

func (c *fakeCap) Release(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used--
	return nil
}

func TestMemoryProvider_CapRejectsOverLimit(t *testing.T) {
	p := NewMemoryProvider(&fakeCap{limit: 1})
	ctx := context.Background()

	if err := p.ReportIncoming(ctx, "u1", "+1555", false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := p.ReportIncoming(ctx, "u2", "+1666", false); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}

	// Ending the first call frees the slot.
	if err := p.ReportEnded(ctx, "u1", EndReasonRemoteEnded); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := p.ReportIncoming(ctx, "u2", "+1666", false); err != nil {
		t.Fatalf("expected slot freed, got %v", err)
	}
}
