// Package bridge fans committed orchestrator transitions out to the
// embedding application. Strictly one-way: nothing here feeds back into the
// lifecycle state machine.
package bridge

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"voicelink/internal/projection"
)

// Publisher is the orchestrator-facing side of the bridge.
type Publisher interface {
	Publish(ev projection.Event)
}

const subscriberQueueDepth = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon binds loopback; the embedding app connects locally.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub delivers projected events to all connected subscribers. Each
// subscriber gets its own send queue; a subscriber that cannot keep up is
// dropped rather than allowed to stall the rest.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn      *websocket.Conn
	sendQ     chan projection.Event
	closeOnce sync.Once
}

func (s *subscriber) closeQ() { s.closeOnce.Do(func() { close(s.sendQ) }) }

func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, subs: make(map[*subscriber]struct{})}
}

// Publish enqueues ev for every subscriber. Never blocks the caller.
func (h *Hub) Publish(ev projection.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.sendQ <- ev:
		default:
			h.log.Warn("dropping slow event bridge subscriber")
			delete(h.subs, sub)
			sub.closeQ()
		}
	}
}

// SubscriberCount reports current connections (diagnostics only).
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// HandleWS upgrades the request and streams events until the client leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("event bridge upgrade failed", "err", err)
		return
	}

	sub := &subscriber{conn: conn, sendQ: make(chan projection.Event, subscriberQueueDepth)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) writePump(sub *subscriber) {
	for ev := range sub.sendQ {
		if err := sub.conn.WriteJSON(ev); err != nil {
			h.remove(sub)
			return
		}
	}
	_ = sub.conn.Close()
}

// readPump discards inbound frames; its only job is to notice the close.
func (h *Hub) readPump(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if ok {
		sub.closeQ()
	}
	_ = sub.conn.Close()
}
