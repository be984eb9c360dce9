package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/slotlink-core/internal/camera"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// telemetryItem is one {slot, value} record. Slot is left raw so a bad slot
// only rejects its own item.
type telemetryItem struct {
	Slot  json.RawMessage `json:"slot"`
	Value any             `json:"value"`
}

type telemetryMessage struct {
	telemetryItem
	Data []json.RawMessage `json:"data"`
}

type cameraMessage struct {
	Slot  *int   `json:"slot"`
	Image string `json:"image"`
}

type statusMessage struct {
	Slot   *int `json:"slot"`
	Status any  `json:"status"`
}

// Route decodes payload according to channel and dispatches it. It never
// returns an error or panics; problems are logged and counted as dropped.
func (l *Listener) Route(ctx context.Context, channel Channel, payload []byte) {
	l.received.Add(1)
	l.lastMsg.Store(l.now().UnixNano())

	defer func() {
		if r := recover(); r != nil {
			l.dropped.Add(1)
			l.logger.Error("panic while routing message", "channel", channel, "panic", r)
		}
	}()

	switch channel {
	case ChannelTelemetry:
		l.routeTelemetry(ctx, payload)
	case ChannelCamera:
		l.routeCamera(ctx, payload)
	case ChannelStatus:
		l.routeStatus(payload)
	default:
		l.dropped.Add(1)
		l.logger.Warn("unknown channel", "channel", channel)
	}
}

func (l *Listener) routeTelemetry(ctx context.Context, payload []byte) {
	var msg telemetryMessage
	if err := decodePayload(payload, &msg); err != nil {
		l.drop("invalid telemetry payload", "error", err)
		return
	}

	if msg.Data == nil {
		l.ingest(ctx, msg.telemetryItem)
		return
	}
	for idx, raw := range msg.Data {
		var item telemetryItem
		if err := decodePayload(raw, &item); err != nil {
			l.drop("invalid telemetry item", "index", idx, "error", err)
			continue
		}
		l.ingest(ctx, item)
	}
}

func (l *Listener) ingest(ctx context.Context, item telemetryItem) {
	n, ok := slotNumber(item.Slot)
	if !ok || item.Value == nil {
		l.drop("telemetry missing slot or value", "slot", string(item.Slot))
		return
	}

	if _, err := l.deps.Ingestor.Ingest(ctx, n, item.Value); err != nil {
		if errors.Is(err, telemetry.ErrUnknownSlot) {
			l.drop("telemetry for unknown slot", "slot", n)
			return
		}
		l.dropped.Add(1)
		l.logger.Error("failed to ingest reading", "slot", n, "error", err)
		return
	}
	l.processed.Add(1)
}

// slotNumber accepts only a JSON integer. Absent, null, string and
// fractional slots are rejected.
func slotNumber(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// decodePayload keeps numbers as json.Number so a value is stored with the
// same text whether it arrived over MQTT or HTTP.
func decodePayload(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func (l *Listener) routeCamera(ctx context.Context, payload []byte) {
	var msg cameraMessage
	if err := decodePayload(payload, &msg); err != nil {
		l.drop("invalid camera payload", "error", err)
		return
	}
	if msg.Slot == nil || msg.Image == "" {
		l.drop("camera message missing slot or image")
		return
	}

	img, err := l.deps.Images.Save(ctx, *msg.Slot, msg.Image)
	if err != nil {
		if errors.Is(err, camera.ErrInvalidSlot) || errors.Is(err, camera.ErrImageTooLarge) {
			l.drop("camera image rejected", "slot", *msg.Slot, "error", err)
			return
		}
		l.dropped.Add(1)
		l.logger.Error("failed to save camera image", "slot", *msg.Slot, "error", err)
		return
	}

	l.processed.Add(1)
	if l.deps.Broadcaster != nil {
		l.deps.Broadcaster.Broadcast(EventCameraUpdated, CameraUpdate{SlotNumber: img.SlotNumber, CreatedAt: img.CreatedAt})
	}
}

func (l *Listener) routeStatus(payload []byte) {
	var msg statusMessage
	if err := decodePayload(payload, &msg); err != nil {
		l.drop("invalid status payload", "error", err)
		return
	}
	if msg.Slot == nil || msg.Status == nil {
		l.drop("status message missing slot or status")
		return
	}

	status := DeviceStatus{SlotNumber: *msg.Slot, Status: msg.Status, ReceivedAt: l.now()}
	l.statusMu.Lock()
	l.statuses[status.SlotNumber] = status
	l.statusMu.Unlock()

	l.processed.Add(1)
	l.logger.Info("device status", "slot", status.SlotNumber, "status", status.Status)
	if l.deps.Broadcaster != nil {
		l.deps.Broadcaster.Broadcast(EventDeviceStatus, status)
	}
}

func (l *Listener) drop(msg string, args ...any) {
	l.dropped.Add(1)
	l.logger.Warn(msg, args...)
}
