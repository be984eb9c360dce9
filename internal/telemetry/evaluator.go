package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/slotlink-core/internal/slot"
)

// Logger defines the logging interface used by the telemetry components.
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

// Evaluator checks value readings against their slot's thresholds and
// records an alert for each bound crossed.
type Evaluator struct {
	alerts AlertRepository
	logger Logger
	now    func() time.Time
}

// NewEvaluator creates an evaluator that stores alerts in repo.
func NewEvaluator(repo AlertRepository) *Evaluator {
	return &Evaluator{
		alerts: repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the evaluator.
func (e *Evaluator) SetLogger(logger Logger) {
	e.logger = logger
}

// Evaluate returns the alerts it stored for raw. It never fails: slots that
// are not value slots, non-numeric readings and slots without thresholds
// produce nothing, and alerts that cannot be stored are logged and omitted.
//
// The high and low checks are independent. A strict comparison is used, so
// a reading equal to a bound does not alert.
func (e *Evaluator) Evaluate(ctx context.Context, s *slot.Slot, raw any) []Alert {
	if s == nil || s.Type != slot.TypeValue {
		return nil
	}
	if s.ThresholdMin == nil && s.ThresholdMax == nil {
		return nil
	}

	v, ok := ParseNumeric(raw)
	if !ok {
		return nil
	}

	var alerts []Alert
	if s.ThresholdMax != nil && v > *s.ThresholdMax {
		alerts = e.record(ctx, alerts, s, AlertThresholdHigh,
			s.Name+" exceeded high threshold: "+fmtNum(v)+s.Unit+" (>"+fmtNum(*s.ThresholdMax)+s.Unit+")")
	}
	if s.ThresholdMin != nil && v < *s.ThresholdMin {
		alerts = e.record(ctx, alerts, s, AlertThresholdLow,
			s.Name+" below low threshold: "+fmtNum(v)+s.Unit+" (<"+fmtNum(*s.ThresholdMin)+s.Unit+")")
	}
	return alerts
}

func (e *Evaluator) record(ctx context.Context, alerts []Alert, s *slot.Slot, typ AlertType, msg string) []Alert {
	alert := Alert{
		SlotNumber: s.SlotNumber,
		Type:       typ,
		Message:    msg,
		CreatedAt:  e.now(),
	}
	if err := e.alerts.Create(ctx, &alert); err != nil {
		e.logger.Error("failed to store alert", "slot", s.SlotNumber, "type", typ, "error", err)
		return alerts
	}
	e.logger.Info("threshold alert", "slot", s.SlotNumber, "type", typ, "message", msg)
	return append(alerts, alert)
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
