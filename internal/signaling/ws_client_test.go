package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testBackend is a minimal signaling server: it answers round-trips from a
// scripted result table and can inject unsolicited call events.
type testBackend struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	results  map[string]any        // method -> result payload
	failWith map[string]*CallError // method -> error response
	seen     []string
	ready    chan struct{}
}

func newTestBackend(t *testing.T) (*testBackend, string) {
	t.Helper()
	b := &testBackend{
		t:        t,
		results:  make(map[string]any),
		failWith: make(map[string]*CallError),
		ready:    make(chan struct{}),
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		close(b.ready)
		b.serve(conn)
	}))
	t.Cleanup(srv.Close)
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (b *testBackend) serve(conn *websocket.Conn) {
	for {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		b.mu.Lock()
		b.seen = append(b.seen, req.Method)
		cerr := b.failWith[req.Method]
		result := b.results[req.Method]
		b.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if cerr != nil {
			resp["error"] = cerr
		} else {
			resp["result"] = result
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// pushEvent sends one unsolicited call event frame to the client.
func (b *testBackend) pushEvent(frame map[string]any) {
	<-b.ready
	frame["event"] = "call"
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.WriteJSON(frame); err != nil {
		b.t.Errorf("push event: %v", err)
	}
}

// tryPushEvent is pushEvent for tests that close the client mid-stream:
// a write failure ends the stream instead of failing the test.
func (b *testBackend) tryPushEvent(frame map[string]any) bool {
	<-b.ready
	frame["event"] = "call"
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.WriteJSON(frame) == nil
}

func dialTestClient(t *testing.T, url string) *WSClient {
	t.Helper()
	c, err := DialWS(context.Background(), WSClientConfig{URL: url}, slog.Default())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectReturnsHandleWithSid(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["connect"] = map[string]any{"callSid": "CA100"}
	c := dialTestClient(t, url)

	h, err := c.Connect(context.Background(), ConnectParams{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if h.Sid() != "CA100" {
		t.Fatalf("expected CA100, got %s", h.Sid())
	}
}

func TestAcceptFallsBackToInviteSid(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["accept"] = map[string]any{}
	c := dialTestClient(t, url)

	h, err := c.Accept(context.Background(), "CA200")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if h.Sid() != "CA200" {
		t.Fatalf("expected invite sid fallback, got %s", h.Sid())
	}
}

func TestErrorResponseSurfacesAsCallError(t *testing.T) {
	b, url := newTestBackend(t)
	b.failWith["accept"] = &CallError{Code: 31603, Message: "invite expired"}
	c := dialTestClient(t, url)

	_, err := c.Accept(context.Background(), "CA1")
	var cerr *CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if cerr.Code != 31603 {
		t.Fatalf("expected code 31603, got %d", cerr.Code)
	}
}

func TestEventsArriveInOrderAndTerminalCloses(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["connect"] = map[string]any{"callSid": "CA1"}
	c := dialTestClient(t, url)

	h, err := c.Connect(context.Background(), ConnectParams{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	b.pushEvent(map[string]any{"callSid": "CA1", "type": "ringing"})
	b.pushEvent(map[string]any{"callSid": "CA1", "type": "connected"})
	b.pushEvent(map[string]any{"callSid": "CA1", "type": "disconnected", "reason": "remoteHangup"})

	var kinds []EventKind
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				if len(kinds) != 3 {
					t.Fatalf("stream closed after %d events: %v", len(kinds), kinds)
				}
				if kinds[0] != EventRinging || kinds[1] != EventConnected || kinds[2] != EventDisconnected {
					t.Fatalf("events out of order: %v", kinds)
				}
				return
			}
			kinds = append(kinds, ev.Kind)
			if ev.Kind == EventDisconnected && ev.Reason != ReasonRemoteHangup {
				t.Fatalf("expected remoteHangup reason, got %s", ev.Reason)
			}
		case <-timeout:
			t.Fatalf("timed out after events %v", kinds)
		}
	}
}

func TestEventForUnknownCallIsIgnored(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["connect"] = map[string]any{"callSid": "CA1"}
	c := dialTestClient(t, url)

	h, err := c.Connect(context.Background(), ConnectParams{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	b.pushEvent(map[string]any{"callSid": "CA-other", "type": "connected"})
	b.pushEvent(map[string]any{"callSid": "CA1", "type": "ringing"})

	select {
	case ev := <-h.Events():
		if ev.Sid != "CA1" || ev.Kind != EventRinging {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ringing")
	}
}

func TestSendDigitsRoundTrip(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["connect"] = map[string]any{"callSid": "CA1"}
	b.results["sendDigits"] = map[string]any{}
	c := dialTestClient(t, url)

	h, err := c.Connect(context.Background(), ConnectParams{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := h.SendDigits(context.Background(), "42#"); err != nil {
		t.Fatalf("send digits: %v", err)
	}

	b.mu.Lock()
	seen := append([]string(nil), b.seen...)
	b.mu.Unlock()
	if len(seen) != 2 || seen[1] != "sendDigits" {
		t.Fatalf("expected a sendDigits round-trip, saw %v", seen)
	}
}

func TestCloseDuringEventStreamDoesNotPanic(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["connect"] = map[string]any{"callSid": "CA1"}
	c := dialTestClient(t, url)

	h, err := c.Connect(context.Background(), ConnectParams{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !b.tryPushEvent(map[string]any{"callSid": "CA1", "type": "ringing"}) {
				return
			}
		}
	}()

	select {
	case <-h.Events():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for first event")
	}

	// Close races the dispatch of the events still in flight; the stream
	// must terminate cleanly rather than crash the read pump.
	_ = c.Close()
	close(stop)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-h.Events():
			if !ok {
				wg.Wait()
				return
			}
		case <-timeout:
			t.Fatalf("event stream never closed after client close")
		}
	}
}

func TestRoundTripAfterCloseFails(t *testing.T) {
	b, url := newTestBackend(t)
	b.results["reject"] = map[string]any{}
	c := dialTestClient(t, url)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Reject(context.Background(), "CA1"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
