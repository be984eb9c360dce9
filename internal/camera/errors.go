package camera

import "errors"

// Domain errors for the camera package.
var (
	// ErrInvalidSlot is returned when the slot does not exist or is not a camera slot.
	ErrInvalidSlot = errors.New("camera: slot is not an active camera slot")

	// ErrImageTooLarge is returned when the encoded image exceeds the store's size limit.
	ErrImageTooLarge = errors.New("camera: image too large")

	// ErrEmptyImage is returned for an empty image payload.
	ErrEmptyImage = errors.New("camera: image is empty")
)
