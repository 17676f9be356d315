package callkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voicelink/pkg/utils"
)

// CapGuard limits how many simultaneous system-UI calls may exist. The
// system UI enforces its own limit on real devices; headless deployments
// enforce one here so ProviderRejected behaves the same way.
type CapGuard interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisCap implements CapGuard over the shared concurrency-cap scripts so a
// device identity served by several processes still honors one limit.
type RedisCap struct {
	RDB   *redis.Client
	Key   string
	Limit int
	TTL   time.Duration
}

func (c *RedisCap) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, c.RDB, c.Key, c.Limit, c.TTL)
}

func (c *RedisCap) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, c.RDB, c.Key)
}

// MemoryProvider is an in-process system UI stand-in: it renders nothing but
// keeps the entry table and relays simulated user gestures over Actions.
// Used in headless daemon mode and by tests.
type MemoryProvider struct {
	cap     CapGuard
	actions chan Action

	mu      sync.Mutex
	entries map[string]*uiEntry
}

type uiEntry struct {
	Display   string
	Connected bool
	OnHold    bool
}

func NewMemoryProvider(cap CapGuard) *MemoryProvider {
	return &MemoryProvider{
		cap:     cap,
		actions: make(chan Action, 32),
		entries: make(map[string]*uiEntry),
	}
}

// Actions streams simulated user gestures to the orchestrator.
func (p *MemoryProvider) Actions() <-chan Action { return p.actions }

func (p *MemoryProvider) register(ctx context.Context, uuid, display string) error {
	if p.cap != nil {
		ok, err := p.cap.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("call cap: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: call limit reached", ErrProviderRejected)
		}
	}

	p.mu.Lock()
	p.entries[uuid] = &uiEntry{Display: display}
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) ReportIncoming(ctx context.Context, uuid, callerDisplay string, _ bool) error {
	return p.register(ctx, uuid, callerDisplay)
}

func (p *MemoryProvider) ReportOutgoing(ctx context.Context, uuid, calleeDisplay string) error {
	return p.register(ctx, uuid, calleeDisplay)
}

func (p *MemoryProvider) UpdateCall(_ context.Context, uuid, displayName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[uuid]; ok {
		e.Display = displayName
	}
	return nil
}

func (p *MemoryProvider) ReportConnected(_ context.Context, uuid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[uuid]; ok {
		e.Connected = true
	}
	return nil
}

func (p *MemoryProvider) ReportEnded(ctx context.Context, uuid string, _ EndReason) error {
	p.mu.Lock()
	_, existed := p.entries[uuid]
	delete(p.entries, uuid)
	p.mu.Unlock()

	if existed && p.cap != nil {
		return p.cap.Release(ctx)
	}
	return nil
}

func (p *MemoryProvider) ReportHeld(_ context.Context, uuid string, onHold bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[uuid]; ok {
		e.OnHold = onHold
	}
	return nil
}

// Entry returns the rendered entry for uuid, if present.
func (p *MemoryProvider) Entry(uuid string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[uuid]
	if !ok {
		return "", false
	}
	return e.Display, true
}

// Simulated user gestures, used by the daemon's debug surface and tests.

func (p *MemoryProvider) Answer(uuid string) { p.actions <- Action{Kind: ActionAnswer, UUID: uuid} }
func (p *MemoryProvider) End(uuid string)    { p.actions <- Action{Kind: ActionEnd, UUID: uuid} }
func (p *MemoryProvider) Mute(uuid string, muted bool) {
	p.actions <- Action{Kind: ActionMute, UUID: uuid, Enabled: muted}
}
func (p *MemoryProvider) Hold(uuid string, onHold bool) {
	p.actions <- Action{Kind: ActionHold, UUID: uuid, Enabled: onHold}
}
func (p *MemoryProvider) Reset() { p.actions <- Action{Kind: ActionReset} }
