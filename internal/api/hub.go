package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/logging"
)

// Hub fans events out to connected dashboard clients. It satisfies the
// Broadcaster interfaces of the telemetry and listener packages, so one hub
// carries readings, alerts, camera updates and device status.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user_id", client.userID, "clients", n)
}

// Unregister removes a client. Only the call that removes it from the map
// closes its send channel, so repeated calls are harmless.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	close(client.send)
	h.logger.Debug("websocket client disconnected", "user_id", client.userID, "clients", n)
}

// Broadcast encodes payload once as an event on channel and queues it for
// every subscribed client. Clients whose buffer is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return
	}

	// The hub lock is released before any client lock is taken.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	var sent, missed int
	for _, client := range targets {
		if !client.isSubscribed(channel) {
			continue
		}
		if client.trySend(data) {
			sent++
		} else {
			missed++
		}
	}
	if missed > 0 {
		h.dropped.Add(uint64(missed)) //nolint:gosec // missed is never negative
		h.logger.Warn("slow websocket clients missed event", "channel", channel, "missed", missed)
	}
	if sent > 0 {
		h.logger.Debug("event broadcast", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many queued events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// closeAll disconnects every client and closes its send channel so its
// write pump exits.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func wsTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
