package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/slotlink-core/internal/auth"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// Message types exchanged with dashboard clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 256
)

// DefaultChannels are the events a client receives when it connects without
// choosing channels. They are also the only channels a client may join.
var DefaultChannels = []string{
	telemetry.EventReadingCreated,
	telemetry.EventAlertCreated,
	listener.EventCameraUpdated,
	listener.EventDeviceStatus,
}

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame with its payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// channelSet holds a client's subscriptions.
type channelSet map[string]struct{}

// WSClient is one connected dashboard.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions channelSet

	userID string
	role   auth.Role
}

// wsTimings are the keepalive settings derived from config.
type wsTimings struct {
	readLimit    int64
	pingInterval time.Duration
	pongWait     time.Duration
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		readLimit:    int64(cfg.MaxMessageSize),
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is when a silent connection is considered dead.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.pingInterval + t.pongWait)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleWebSocket upgrades an authenticated request. Browsers pass a
// single-use ?ticket= from POST /api/auth/ws-ticket; other clients may pass
// the access token as ?token=. The client starts subscribed to ?channels=
// (comma separated) or to DefaultChannels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := s.wsIdentity(w, r)
	if !ok {
		return
	}
	if !auth.HasPermission(role, auth.PermDataRead) {
		writeForbidden(w, "insufficient permissions")
		return
	}

	channels := DefaultChannels
	if raw := r.URL.Query().Get("channels"); raw != "" {
		channels, _ = partitionChannels(splitChannels(raw))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(channelSet, len(channels)),
		userID:        userID,
		role:          role,
	}
	client.subscribe(channels)
	s.hub.Register(client)

	timings := timingsFrom(s.wsCfg)
	go client.writePump(timings)
	go client.readPump(timings)
}

// wsIdentity resolves the caller from ?ticket= or the access token and
// writes a 401 when neither is valid.
func (s *Server) wsIdentity(w http.ResponseWriter, r *http.Request) (string, auth.Role, bool) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		entry, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return "", "", false
		}
		return entry.userID, entry.role, true
	}

	token := bearerToken(r)
	if token == "" {
		writeUnauthorized(w, "token or ticket query parameter is required")
		return "", "", false
	}
	claims, err := s.authSvc.Authenticate(token)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return "", "", false
	}
	return claims.Subject, claims.Role, true
}

func splitChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// partitionChannels separates channels the hub publishes from unknown names.
func partitionChannels(channels []string) (known, unknown []string) {
	for _, ch := range channels {
		if slices.Contains(DefaultChannels, ch) {
			known = append(known, ch)
		} else {
			unknown = append(unknown, ch)
		}
	}
	return known, unknown
}

// readPump handles client frames until the connection fails, then
// unregisters the client.
func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // read error surfaces above
		c.handleFrame(frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write error surfaces below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is closing
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleFrame(frame []byte) {
	var req wsRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.sendError(req.ID, "payload must be {\"channels\": [...]}")
			return
		}
		if req.Type == WSTypeSubscribe {
			known, unknown := partitionChannels(sub.Channels)
			c.subscribe(known)
			resp := map[string]any{"subscribed": known}
			if len(unknown) > 0 {
				resp["unknown"] = unknown
			}
			c.reply(req.ID, WSTypeResponse, resp)
			return
		}
		c.unsubscribe(sub.Channels)
		c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. It reports false when the queue is
// full or the client has already been unregistered.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil { // send on a channel closed by Unregister
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
