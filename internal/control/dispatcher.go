package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// Command is a binary slot command.
type Command int

// Supported commands.
const (
	CommandOff Command = 0
	CommandOn  Command = 1
)

// Valid reports whether c is CommandOff or CommandOn.
func (c Command) Valid() bool {
	return c == CommandOff || c == CommandOn
}

// ParseCommand converts a decoded JSON value to a Command. The numbers 0 and
// 1 (in any JSON number form) and the booleans false and true are accepted;
// strings are not.
func ParseCommand(raw any) (Command, error) {
	var f float64
	switch v := raw.(type) {
	case bool:
		if v {
			return CommandOn, nil
		}
		return CommandOff, nil
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, ErrInvalidCommand
		}
		f = parsed
	default:
		return 0, ErrInvalidCommand
	}
	if f != math.Trunc(f) {
		return 0, ErrInvalidCommand
	}
	c := Command(f)
	if !c.Valid() {
		return 0, ErrInvalidCommand
	}
	return c, nil
}

// Message is the wire format published to devices.
type Message struct {
	Slot    int     `json:"slot"`
	Command Command `json:"command"`
}

// SlotLookup resolves active slots. *slot.Registry satisfies it.
type SlotLookup interface {
	GetByNumber(ctx context.Context, n int) (*slot.Slot, error)
}

// Publisher is the outbound transport. *mqtt.Client satisfies it.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder stores the dispatched command as a reading. *telemetry.Ingestor
// satisfies it.
type Recorder interface {
	Ingest(ctx context.Context, n int, raw any) (*telemetry.Reading, error)
}

// Logger defines the logging interface used by the Dispatcher.
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

// Options configures a Dispatcher.
type Options struct {
	// Topic is the control topic devices subscribe to.
	Topic string
	// QoS for command publishes.
	QoS byte
}

// Dispatcher validates and sends slot commands.
type Dispatcher struct {
	slots     SlotLookup
	publisher Publisher
	recorder  Recorder
	opts      Options
	logger    Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(slots SlotLookup, publisher Publisher, recorder Recorder, opts Options) *Dispatcher {
	return &Dispatcher{
		slots:     slots,
		publisher: publisher,
		recorder:  recorder,
		opts:      opts,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch sends cmd to control slot n and records it as a reading.
//
// Validation happens in order: command, slot, transport. Any failure means
// nothing was published and nothing was recorded. A recording failure after
// a successful publish is returned wrapped; the device already has the
// command.
func (d *Dispatcher) Dispatch(ctx context.Context, n int, cmd Command) error {
	if !cmd.Valid() {
		return ErrInvalidCommand
	}

	s, err := d.slots.GetByNumber(ctx, n)
	if errors.Is(err, slot.ErrSlotNotFound) {
		return fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	if err != nil {
		return fmt.Errorf("looking up slot %d: %w", n, err)
	}
	if s.Type != slot.TypeControl {
		return fmt.Errorf("%w: slot %d is %s", ErrInvalidSlot, n, s.Type)
	}

	if d.publisher == nil || !d.publisher.IsConnected() {
		return ErrTransportUnavailable
	}

	payload, err := json.Marshal(Message{Slot: n, Command: cmd})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if err := d.publisher.Publish(d.opts.Topic, payload, d.opts.QoS, false); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	d.logger.Info("command published", "slot", n, "command", int(cmd), "topic", d.opts.Topic)

	if _, err := d.recorder.Ingest(ctx, n, int(cmd)); err != nil {
		d.logger.Error("command published but not recorded", "slot", n, "command", int(cmd), "error", err)
		return fmt.Errorf("recording command for slot %d: %w", n, err)
	}
	return nil
}
