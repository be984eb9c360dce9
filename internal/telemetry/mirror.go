package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/slotlink-core/internal/slot"
)

// Mirror receives readings and alerts after they are committed to SQLite.
// Mirror errors are logged by the Ingestor and never fail an ingest.
type Mirror interface {
	Name() string
	MirrorReading(ctx context.Context, s *slot.Slot, r *Reading) error
	MirrorAlert(ctx context.Context, a *Alert) error
}

// PointWriter is the time-series sink used by InfluxMirror.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteReading(slotNumber int, slotType, slotName string, value float64, at time.Time)
	WriteAlert(slotNumber int, alertType, message string, at time.Time)
}

// InfluxMirror writes numeric readings and all alerts as time-series points.
type InfluxMirror struct {
	w PointWriter
}

// NewInfluxMirror creates a mirror over w.
func NewInfluxMirror(w PointWriter) *InfluxMirror {
	return &InfluxMirror{w: w}
}

func (m *InfluxMirror) Name() string { return "influxdb" }

// MirrorReading skips readings that are not numeric.
func (m *InfluxMirror) MirrorReading(_ context.Context, s *slot.Slot, r *Reading) error {
	v, ok := ParseNumeric(r.Value)
	if !ok {
		return nil
	}
	m.w.WriteReading(r.SlotNumber, string(s.Type), s.Name, v, r.CreatedAt)
	return nil
}

func (m *InfluxMirror) MirrorAlert(_ context.Context, a *Alert) error {
	m.w.WriteAlert(a.SlotNumber, string(a.Type), a.Message, a.CreatedAt)
	return nil
}

// LatestStore is a hot cache of the newest value per slot.
// *redis.Client in the infrastructure package satisfies it.
type LatestStore interface {
	SetLatest(ctx context.Context, slotNumber int, id int64, value string, at time.Time) error
}

// CacheMirror keeps LatestStore current. Alerts are not cached.
type CacheMirror struct {
	store LatestStore
}

// NewCacheMirror creates a mirror over store.
func NewCacheMirror(store LatestStore) *CacheMirror {
	return &CacheMirror{store: store}
}

func (m *CacheMirror) Name() string { return "redis" }

func (m *CacheMirror) MirrorReading(ctx context.Context, _ *slot.Slot, r *Reading) error {
	return m.store.SetLatest(ctx, r.SlotNumber, r.ID, r.Value, r.CreatedAt)
}

func (m *CacheMirror) MirrorAlert(context.Context, *Alert) error { return nil }

// Broadcaster pushes named events to live subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Event names published by BroadcastMirror.
const (
	EventReadingCreated = "reading.created"
	EventAlertCreated   = "alert.created"
)

// BroadcastMirror publishes readings and alerts as live events.
type BroadcastMirror struct {
	b Broadcaster
}

// NewBroadcastMirror creates a mirror over b.
func NewBroadcastMirror(b Broadcaster) *BroadcastMirror {
	return &BroadcastMirror{b: b}
}

func (m *BroadcastMirror) Name() string { return "websocket" }

func (m *BroadcastMirror) MirrorReading(_ context.Context, _ *slot.Slot, r *Reading) error {
	m.b.Broadcast(EventReadingCreated, r)
	return nil
}

func (m *BroadcastMirror) MirrorAlert(_ context.Context, a *Alert) error {
	m.b.Broadcast(EventAlertCreated, a)
	return nil
}
