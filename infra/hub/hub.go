// Package hub fans refresh-cycle payloads out to websocket subscribers.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mgrande/ladevakt/core/logger"
	"github.com/mgrande/ladevakt/core/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer bounds the per-subscriber queue. A subscriber that cannot
	// drain it is disconnected rather than allowed to stall the broadcast.
	sendBuffer = 16
)

// Hub tracks websocket subscribers and broadcasts payloads to all of them.
type Hub struct {
	log      logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*subscriber
	last  *model.Payload
}

type subscriber struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// New creates an empty Hub.
func New(log logger.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*subscriber),
	}
}

// Handler upgrades HTTP requests to websocket subscriptions.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warnf("websocket upgrade failed: %v", err)
			return
		}
		sub := &subscriber{
			id:   uuid.NewString(),
			ws:   ws,
			send: make(chan []byte, sendBuffer),
		}
		h.register(sub)
		go h.writeLoop(sub)
		go h.readLoop(sub)
	}
}

// register adds the subscriber and queues the last known payload as an
// initial_status so late subscribers see current state immediately.
func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sub.id] = sub
	if h.last != nil {
		if b, err := json.Marshal(h.last.WithType(model.PayloadInitialStatus)); err == nil {
			sub.send <- b
		}
	}
	h.log.Infof("subscriber %s connected (%d total)", sub.id, len(h.conns))
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[sub.id]; !ok {
		return
	}
	delete(h.conns, sub.id)
	close(sub.send)
	h.log.Infof("subscriber %s disconnected (%d total)", sub.id, len(h.conns))
}

// Broadcast delivers the payload to every connected subscriber and records
// it for initial replay. Slow subscribers are dropped, not waited for.
func (h *Hub) Broadcast(p model.Payload) {
	b, err := json.Marshal(p)
	if err != nil {
		h.log.Errorf("marshal broadcast payload: %v", err)
		return
	}

	h.mu.Lock()
	h.last = &p
	var stalled []*subscriber
	for _, sub := range h.conns {
		select {
		case sub.send <- b:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(h.conns, sub.id)
		close(sub.send)
		h.log.Warnf("subscriber %s dropped: send queue full", sub.id)
	}
	h.mu.Unlock()
}

// Subscribers returns the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.conns {
		delete(h.conns, id)
		close(sub.send)
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(sub)
				return
			}
		case <-ticker.C:
			_ = sub.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(sub)
				return
			}
		}
	}
}

// readLoop consumes client messages. The only meaningful client message is
// the liveness probe {"type":"ping"}, answered with {"type":"pong"};
// everything else is logged and ignored.
func (h *Hub) readLoop(sub *subscriber) {
	defer func() {
		h.unregister(sub)
		_ = sub.ws.Close()
	}()
	sub.ws.SetReadLimit(4096)
	_ = sub.ws.SetReadDeadline(time.Now().Add(pongWait))
	sub.ws.SetPongHandler(func(string) error {
		return sub.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := sub.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = sub.ws.SetReadDeadline(time.Now().Add(pongWait))
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &probe); err == nil && probe.Type == "ping" {
			h.enqueue(sub, []byte(`{"type":"pong"}`))
			continue
		}
		h.log.Debugf("subscriber %s sent unknown message: %.64s", sub.id, msg)
	}
}

func (h *Hub) enqueue(sub *subscriber, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[sub.id]; !ok {
		return
	}
	select {
	case sub.send <- msg:
	default:
	}
}
