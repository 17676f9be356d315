package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient speaks the backend's JSON frame protocol over a single WebSocket
// connection. Requests carry a correlation id and are matched to responses by
// the read pump; unsolicited call frames are dispatched to the per-call
// handle's event channel in arrival order.

var ErrClientClosed = errors.New("signaling: client closed")

const (
	wsDialTimeout    = 10 * time.Second
	wsWriteTimeout   = 10 * time.Second
	handleEventDepth = 16
)

type wsRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wsFrame struct {
	// Response fields.
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *CallError      `json:"error,omitempty"`

	// Event fields.
	Event   string           `json:"event,omitempty"`
	CallSid string           `json:"callSid,omitempty"`
	Type    EventKind        `json:"type,omitempty"`
	Reason  DisconnectReason `json:"reason,omitempty"`
	CallErr *CallError       `json:"callError,omitempty"`

	CurrentWarnings  []string `json:"currentWarnings,omitempty"`
	PreviousWarnings []string `json:"previousWarnings,omitempty"`
}

type WSClientConfig struct {
	URL         string
	AccessToken string
}

type WSClient struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex // serializes writes to conn

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan wsFrame
	handles map[string]*wsHandle // callSid -> handle
	closed  bool
	done    chan struct{}
}

// DialWS connects to the signaling backend and starts the read pump.
func DialWS(ctx context.Context, cfg WSClientConfig, log *slog.Logger) (*WSClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("signaling: backend url is required")
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	header := http.Header{}
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("signaling: dial %s: %w", cfg.URL, err)
	}

	c := &WSClient{
		log:     log,
		conn:    conn,
		pending: make(map[int64]chan wsFrame),
		handles: make(map[string]*wsHandle),
		done:    make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Close tears the connection down. Pending round-trips fail with
// ErrClientClosed; handle event channels are closed by the read pump as it
// exits, never here, so a dispatch in flight cannot send on a closed channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *WSClient) readPump() {
	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.log.Warn("signaling read pump stopped", "err", err)
			_ = c.Close()
			c.closeHandles()
			return
		}

		if frame.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
			continue
		}

		if frame.Event == "call" {
			c.dispatchCallEvent(frame)
		}
	}
}

// closeHandles runs on the read pump goroutine after the pump has stopped
// dispatching, so it can never race a send into a handle channel.
func (c *WSClient) closeHandles() {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]*wsHandle)
	c.mu.Unlock()
	for _, h := range handles {
		close(h.events)
	}
}

func (c *WSClient) dispatchCallEvent(frame wsFrame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	h, ok := c.handles[frame.CallSid]
	if ok && isTerminal(frame.Type) {
		delete(c.handles, frame.CallSid)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug("event for unknown call", "call_sid", frame.CallSid, "type", frame.Type)
		return
	}

	ev := Event{
		Kind:             frame.Type,
		Sid:              frame.CallSid,
		Reason:           frame.Reason,
		Err:              frame.CallErr,
		CurrentWarnings:  frame.CurrentWarnings,
		PreviousWarnings: frame.PreviousWarnings,
	}
	// The event channel is owned by the orchestrator's per-call pump and
	// drained promptly; block rather than reorder or drop.
	h.events <- ev
	if isTerminal(frame.Type) {
		close(h.events)
	}
}

func isTerminal(kind EventKind) bool {
	return kind == EventDisconnected || kind == EventConnectFailure
}

func (c *WSClient) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("signaling: marshal %s params: %w", method, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan wsFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err = c.conn.WriteJSON(wsRequest{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("signaling: send %s: %w", method, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		if frame.Error != nil {
			return nil, frame.Error
		}
		return frame.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

type callResult struct {
	CallSid string `json:"callSid"`
}

func (c *WSClient) newHandle(sid string) *wsHandle {
	h := &wsHandle{client: c, sid: sid, events: make(chan Event, handleEventDepth)}
	c.mu.Lock()
	c.handles[sid] = h
	c.mu.Unlock()
	return h
}

func (c *WSClient) Connect(ctx context.Context, params ConnectParams) (Handle, error) {
	res, err := c.roundTrip(ctx, "connect", map[string]any{
		"from":   params.From,
		"to":     params.To,
		"params": params.Params,
	})
	if err != nil {
		return nil, err
	}
	var out callResult
	if err := json.Unmarshal(res, &out); err != nil || out.CallSid == "" {
		return nil, fmt.Errorf("signaling: connect returned no call sid")
	}
	return c.newHandle(out.CallSid), nil
}

func (c *WSClient) Accept(ctx context.Context, callSid string) (Handle, error) {
	res, err := c.roundTrip(ctx, "accept", map[string]any{"callSid": callSid})
	if err != nil {
		return nil, err
	}
	var out callResult
	if err := json.Unmarshal(res, &out); err != nil || out.CallSid == "" {
		// Backends echo the invite sid; fall back to it if absent.
		out.CallSid = callSid
	}
	return c.newHandle(out.CallSid), nil
}

func (c *WSClient) Reject(ctx context.Context, callSid string) error {
	_, err := c.roundTrip(ctx, "reject", map[string]any{"callSid": callSid})
	return err
}

func (c *WSClient) Register(ctx context.Context, token []byte) error {
	_, err := c.roundTrip(ctx, "register", map[string]any{"token": string(token)})
	return err
}

func (c *WSClient) Unregister(ctx context.Context, token []byte) error {
	_, err := c.roundTrip(ctx, "unregister", map[string]any{"token": string(token)})
	return err
}

type wsHandle struct {
	client *WSClient
	sid    string
	events chan Event
}

func (h *wsHandle) Sid() string          { return h.sid }
func (h *wsHandle) Events() <-chan Event { return h.events }

func (h *wsHandle) Hangup(ctx context.Context) error {
	_, err := h.client.roundTrip(ctx, "hangup", map[string]any{"callSid": h.sid})
	return err
}

func (h *wsHandle) Mute(ctx context.Context, muted bool) error {
	_, err := h.client.roundTrip(ctx, "mute", map[string]any{"callSid": h.sid, "muted": muted})
	return err
}

func (h *wsHandle) Hold(ctx context.Context, onHold bool) error {
	_, err := h.client.roundTrip(ctx, "hold", map[string]any{"callSid": h.sid, "onHold": onHold})
	return err
}

func (h *wsHandle) SendDigits(ctx context.Context, digits string) error {
	_, err := h.client.roundTrip(ctx, "sendDigits", map[string]any{"callSid": h.sid, "digits": digits})
	return err
}

func (h *wsHandle) Stats(ctx context.Context) ([]StatsReport, error) {
	res, err := h.client.roundTrip(ctx, "stats", map[string]any{"callSid": h.sid})
	if err != nil {
		return nil, err
	}
	var reports []StatsReport
	if err := json.Unmarshal(res, &reports); err != nil {
		return nil, fmt.Errorf("signaling: decode stats: %w", err)
	}
	return reports, nil
}
