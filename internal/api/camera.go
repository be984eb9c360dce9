package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/slotlink-core/internal/camera"
	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

type uploadImageRequest struct {
	Image string `json:"image"`
}

// handleGetCamera returns the latest frame of a camera slot together with its
// stream URL. image_data is null until a device uploads a frame.
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.activeSlot(w, r)
	if !ok {
		return
	}
	if sl.Type != slot.TypeCamera {
		writeBadRequest(w, "slot is not a camera slot")
		return
	}

	img, err := s.images.Get(r.Context(), sl.SlotNumber)
	if err != nil {
		s.logger.Error("loading camera image failed", "slot", sl.SlotNumber, "error", err)
		writeInternalError(w, "failed to load image")
		return
	}

	if img == nil {
		writeData(w, http.StatusOK, map[string]any{
			"image_data": nil,
			"stream_url": sl.StreamURL,
			"message":    "no image yet",
		})
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"image_data": img.ImageData,
		"created_at": img.CreatedAt,
		"stream_url": sl.StreamURL,
	})
}

// handleUploadCamera stores a frame pushed over HTTP by a camera device.
func (s *Server) handleUploadCamera(w http.ResponseWriter, r *http.Request) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return
	}

	var req uploadImageRequest
	if err := decodeJSON(r, &req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}

	img, err := s.images.Save(r.Context(), n, req.Image)
	switch {
	case errors.Is(err, camera.ErrEmptyImage):
		writeBadRequest(w, "image is required")
		return
	case errors.Is(err, camera.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	case errors.Is(err, camera.ErrInvalidSlot):
		writeNotFound(w, "camera slot not found")
		return
	case err != nil:
		s.logger.Error("saving camera image failed", "slot", n, "error", err)
		writeInternalError(w, "failed to save image")
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(listener.EventCameraUpdated, listener.CameraUpdate{
			SlotNumber: img.SlotNumber,
			CreatedAt:  img.CreatedAt,
		})
	}
	writeMessage(w, http.StatusCreated, "image saved")
}
