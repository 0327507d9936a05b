package server

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// Hub fans session events out to connected WebSocket clients. It implements
// session.Observer. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan<- any]struct{}
}

// NewHub returns a Hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan<- any]struct{})}
}

// Subscribe registers a client send channel and returns a function that
// removes it. After the returned function returns, the hub no longer writes
// to send, so the caller may close it.
func (h *Hub) Subscribe(send chan<- any) (unsubscribe func()) {
	h.mu.Lock()
	h.clients[send] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.clients, send)
		h.mu.Unlock()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast delivers msg to every client without blocking; slow clients
// miss the message.
func (h *Hub) broadcast(msgType string, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for send := range h.clients {
		trySend(send, msgType, msg)
	}
}

// OnReading pushes a loudness reading.
func (h *Hub) OnReading(loudness int, recording bool) {
	h.broadcast("reading", types.WSReading{Type: "reading", Loudness: loudness, Recording: recording})
}

// OnTick pushes the countdown.
func (h *Hub) OnTick(remaining time.Duration) {
	h.broadcast("tick", types.WSTick{Type: "tick", RemainingMs: remaining.Milliseconds()})
}

// OnComplete pushes the session result.
func (h *Hub) OnComplete(result types.SessionResult) {
	h.broadcast("result", types.WSResult{Type: "result", Result: result})
}

// OnFailed pushes the failure.
func (h *Hub) OnFailed(failure types.SessionFailure) {
	h.broadcast("failed", types.WSFailure{Type: "failed", Failure: failure})
}
