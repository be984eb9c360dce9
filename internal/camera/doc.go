// Package camera keeps the most recent frame for each camera slot.
//
// Only one image per slot is ever stored. Save replaces the previous frame
// inside a single transaction, so concurrent readers see either the old
// frame or the new one and never an empty slot.
//
// Images are stored exactly as received (typically a base64 data URL); the
// store does not decode or validate the image format, only its size.
package camera
