package telemetry

import "time"

// timeLayout stores timestamps as UTC with millisecond precision so they
// sort lexically in SQLite.
const timeLayout = "2006-01-02T15:04:05.000Z"

// History and alert list bounds.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
	DefaultAlertLimit   = 50
	MaxAlertLimit       = 1000
)

// Reading is one stored telemetry value. Values are kept as text; numeric
// interpretation happens only in the evaluator and the mirrors.
type Reading struct {
	ID         int64     `json:"id"`
	SlotNumber int       `json:"slot_number"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
}

// AlertType identifies which threshold was crossed.
type AlertType string

const (
	AlertThresholdHigh AlertType = "threshold_high"
	AlertThresholdLow  AlertType = "threshold_low"
)

// Alert records a threshold crossing. Only IsRead changes after creation.
type Alert struct {
	ID         int64     `json:"id"`
	SlotNumber int       `json:"slot_number"`
	Type       AlertType `json:"alert_type"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s) //nolint:errcheck // fallback for hand-inserted rows
	}
	return t
}

func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}
