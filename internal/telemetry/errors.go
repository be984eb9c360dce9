package telemetry

import "errors"

var (
	// ErrUnknownSlot is returned by Ingest when no active slot has the number.
	ErrUnknownSlot = errors.New("telemetry: unknown slot")

	// ErrAlertNotFound is returned by MarkRead for a missing alert ID.
	ErrAlertNotFound = errors.New("telemetry: alert not found")
)
