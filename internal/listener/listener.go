package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/slotlink-core/internal/camera"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// Channel identifies the kind of inbound message.
type Channel string

// Inbound channels.
const (
	ChannelTelemetry Channel = "telemetry"
	ChannelCamera    Channel = "camera"
	ChannelStatus    Channel = "status"
)

// State is the listener's connection state.
type State string

// Listener states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Broadcast event names.
const (
	EventCameraUpdated = "camera.updated"
	EventDeviceStatus  = "device.status"
)

// Transport is the broker connection. *mqtt.Client satisfies it.
type Transport interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Ingestor stores readings. *telemetry.Ingestor satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, n int, raw any) (*telemetry.Reading, error)
}

// ImageStore stores camera frames. *camera.Store satisfies it.
type ImageStore interface {
	Save(ctx context.Context, n int, imageData string) (*camera.Image, error)
}

// Broadcaster pushes events to live clients. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the listener's collaborators. Transport, Ingestor and Images
// are required; Broadcaster and Logger are optional.
type Deps struct {
	Transport   Transport
	Topics      mqtt.Topics
	QoS         byte
	Ingestor    Ingestor
	Images      ImageStore
	Broadcaster Broadcaster
	Logger      Logger
}

// DeviceStatus is the last status a device reported for a slot.
type DeviceStatus struct {
	SlotNumber int       `json:"slot_number"`
	Status     any       `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// CameraUpdate announces a new frame without carrying the image itself.
type CameraUpdate struct {
	SlotNumber int       `json:"slot_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats counts routed messages.
type Stats struct {
	Received      uint64    `json:"received"`
	Processed     uint64    `json:"processed"`
	Dropped       uint64    `json:"dropped"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
}

// Listener subscribes to the inbound device topics and routes messages.
type Listener struct {
	deps   Deps
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
	ctx     context.Context
	subbed  []string

	statusMu sync.RWMutex
	statuses map[int]DeviceStatus

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	lastMsg   atomic.Int64
}

// New creates a Listener. It does not subscribe until Start.
func New(deps Deps) *Listener {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{
		deps:     deps,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      context.Background(),
		statuses: make(map[int]DeviceStatus),
	}
}

// Start subscribes to the telemetry, camera and status topics. Messages are
// handled with ctx; resubscription after a reconnect is the transport's job.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}
	if l.deps.Transport == nil {
		return errors.New("listener: no transport")
	}

	l.ctx = ctx
	for _, topic := range l.deps.Topics.Inbound() {
		if err := l.deps.Transport.Subscribe(topic, l.deps.QoS, l.handleMessage); err != nil {
			l.unsubscribeLocked()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		l.subbed = append(l.subbed, topic)
	}

	l.started = true
	l.logger.Info("listener started", "topics", l.subbed)
	return nil
}

// Stop unsubscribes. Errors from a transport that is already down are ignored.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return
	}
	l.unsubscribeLocked()
	l.started = false
	l.logger.Info("listener stopped")
}

func (l *Listener) unsubscribeLocked() {
	for _, topic := range l.subbed {
		if err := l.deps.Transport.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			l.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	l.subbed = nil
}

// State reports disconnected before Start and after Stop. While started it
// follows the transport: connected, or connecting while it reconnects.
func (l *Listener) State() State {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	switch {
	case !started:
		return StateDisconnected
	case l.deps.Transport.IsConnected():
		return StateConnected
	default:
		return StateConnecting
	}
}

// ChannelForTopic maps a received topic to its channel.
func (l *Listener) ChannelForTopic(topic string) (Channel, bool) {
	t := l.deps.Topics
	switch {
	case mqtt.Match(t.Data(), topic):
		return ChannelTelemetry, true
	case mqtt.Match(t.Camera(), topic):
		return ChannelCamera, true
	case mqtt.Match(t.Status(), topic):
		return ChannelStatus, true
	}
	return "", false
}

// DeviceStatus returns the last status reported per slot.
func (l *Listener) DeviceStatus() map[int]DeviceStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()

	out := make(map[int]DeviceStatus, len(l.statuses))
	for n, s := range l.statuses {
		out[n] = s
	}
	return out
}

// Stats returns the routing counters.
func (l *Listener) Stats() Stats {
	s := Stats{
		Received:  l.received.Load(),
		Processed: l.processed.Load(),
		Dropped:   l.dropped.Load(),
	}
	if ns := l.lastMsg.Load(); ns != 0 {
		s.LastMessageAt = time.Unix(0, ns).UTC()
	}
	return s
}

func (l *Listener) handleMessage(topic string, payload []byte) error {
	ch, ok := l.ChannelForTopic(topic)
	if !ok {
		l.received.Add(1)
		l.dropped.Add(1)
		l.logger.Warn("message on unexpected topic", "topic", topic)
		return nil
	}

	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	l.Route(ctx, ch, payload)
	return nil
}
