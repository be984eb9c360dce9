package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/slotlink-core/internal/slot"
)

// SlotLookup resolves an active slot by number. *slot.Registry satisfies it.
type SlotLookup interface {
	GetByNumber(ctx context.Context, n int) (*slot.Slot, error)
}

// Ingestor is the single entry point for readings, whichever transport
// delivered them. It validates the slot, stores the reading, runs the
// threshold evaluator and then hands the result to any mirrors.
type Ingestor struct {
	slots     SlotLookup
	readings  ReadingRepository
	evaluator *Evaluator
	logger    Logger
	now       func() time.Time

	mu      sync.RWMutex
	mirrors []Mirror
}

// NewIngestor creates an ingestor. evaluator may be nil to skip alerting.
func NewIngestor(slots SlotLookup, readings ReadingRepository, evaluator *Evaluator) *Ingestor {
	return &Ingestor{
		slots:     slots,
		readings:  readings,
		evaluator: evaluator,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the ingestor.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// AddMirror registers a secondary destination for readings and alerts.
func (i *Ingestor) AddMirror(m Mirror) {
	i.mu.Lock()
	i.mirrors = append(i.mirrors, m)
	i.mu.Unlock()
}

// Ingest stores raw as a reading for slot n.
//
// Any active slot accepts readings regardless of its type; only value slots
// are evaluated against thresholds. Returns ErrUnknownSlot, without storing
// anything, when n is not an active slot.
func (i *Ingestor) Ingest(ctx context.Context, n int, raw any) (*Reading, error) {
	s, err := i.slots.GetByNumber(ctx, n)
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSlot, n)
		}
		return nil, fmt.Errorf("looking up slot %d: %w", n, err)
	}

	reading, err := i.readings.Append(ctx, n, FormatValue(raw), i.now())
	if err != nil {
		return nil, err
	}
	i.logger.Debug("reading stored", "slot", n, "value", reading.Value)

	var alerts []Alert
	if i.evaluator != nil {
		alerts = i.evaluator.Evaluate(ctx, s, raw)
	}

	i.fanOut(ctx, s, reading, alerts)
	return reading, nil
}

func (i *Ingestor) fanOut(ctx context.Context, s *slot.Slot, reading *Reading, alerts []Alert) {
	i.mu.RLock()
	mirrors := i.mirrors
	i.mu.RUnlock()

	for _, m := range mirrors {
		if err := m.MirrorReading(ctx, s, reading); err != nil {
			i.logger.Warn("reading mirror failed", "mirror", m.Name(), "slot", s.SlotNumber, "error", err)
		}
		for idx := range alerts {
			if err := m.MirrorAlert(ctx, &alerts[idx]); err != nil {
				i.logger.Warn("alert mirror failed", "mirror", m.Name(), "slot", s.SlotNumber, "error", err)
			}
		}
	}
}
