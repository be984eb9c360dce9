package slot

import "errors"

// Domain errors for the slot package. Check with errors.Is.
var (
	// ErrSlotNotFound is returned when no active slot has the given number.
	ErrSlotNotFound = errors.New("slot: not found")

	// ErrDuplicateSlot is returned when creating a slot whose number is
	// already held by an active slot.
	ErrDuplicateSlot = errors.New("slot: number already in use")

	// ErrOutOfRange is returned when a slot number is outside [1, MaxSlots].
	ErrOutOfRange = errors.New("slot: number out of range")

	// ErrInvalidType is returned for a type other than value, status, control or camera.
	ErrInvalidType = errors.New("slot: invalid type")

	// ErrInvalidName is returned when a slot name is empty.
	ErrInvalidName = errors.New("slot: invalid name")
)
