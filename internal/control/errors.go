package control

import "errors"

// Domain errors for the control package.
var (
	// ErrInvalidCommand is returned for a command other than 0 or 1.
	ErrInvalidCommand = errors.New("control: command must be 0 or 1")

	// ErrInvalidSlot is returned when the slot is missing or not a control slot.
	// A missing slot also matches slot.ErrSlotNotFound.
	ErrInvalidSlot = errors.New("control: slot is not an active control slot")

	// ErrTransportUnavailable is returned when the broker connection is down.
	// Nothing is published or recorded.
	ErrTransportUnavailable = errors.New("control: transport unavailable")
)
