package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

type createSlotRequest struct {
	SlotNumber   *int      `json:"slot_number"`
	Type         slot.Type `json:"type"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	Icon         string    `json:"icon"`
	Location     string    `json:"location"`
	StreamURL    string    `json:"stream_url"`
	ThresholdMin *float64  `json:"threshold_min"`
	ThresholdMax *float64  `json:"threshold_max"`
}

// slotParam parses the {n} URL parameter. ok is false when it is not an integer.
func slotParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	return n, err == nil
}

// handleListSlots returns the active slots ordered by number.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.registry.GetActive(r.Context())
	if err != nil {
		s.logger.Error("listing slots failed", "error", err)
		writeInternalError(w, "failed to list slots")
		return
	}
	writeData(w, http.StatusOK, slots)
}

// handleAvailableSlots returns the slot numbers not in use.
func (s *Server) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	available, err := s.registry.ListAvailableNumbers(r.Context())
	if err != nil {
		s.logger.Error("listing available slots failed", "error", err)
		writeInternalError(w, "failed to list available slots")
		return
	}
	writeData(w, http.StatusOK, available)
}

// handleGetSlot returns one active slot.
func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return
	}

	sl, err := s.registry.GetByNumber(r.Context(), n)
	if errors.Is(err, slot.ErrSlotNotFound) {
		writeNotFound(w, "slot not found")
		return
	}
	if err != nil {
		s.logger.Error("loading slot failed", "slot", n, "error", err)
		writeInternalError(w, "failed to load slot")
		return
	}
	writeData(w, http.StatusOK, sl)
}

// handleCreateSlot configures a new slot. Type defaults to value.
func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SlotNumber == nil || req.Name == "" {
		writeBadRequest(w, "slot_number and name are required")
		return
	}
	if req.Type == "" {
		req.Type = slot.TypeValue
	}

	sl := &slot.Slot{
		SlotNumber:   *req.SlotNumber,
		Type:         req.Type,
		Name:         req.Name,
		Unit:         req.Unit,
		Icon:         req.Icon,
		Location:     req.Location,
		StreamURL:    req.StreamURL,
		ThresholdMin: req.ThresholdMin,
		ThresholdMax: req.ThresholdMax,
	}

	id, err := s.registry.Create(r.Context(), sl)
	if err != nil {
		s.writeSlotError(w, *req.SlotNumber, err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.audit.Record(&audit.Entry{
		Action:     audit.ActionCreate,
		EntityType: audit.EntitySlot,
		EntityID:   strconv.Itoa(sl.SlotNumber),
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"type": sl.Type, "name": sl.Name},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "slot created",
		"slot_id": id,
	})
}

// handleUpdateSlot applies a partial update. Absent keys are left alone and
// null clears a field.
func (s *Server) handleUpdateSlot(w http.ResponseWriter, r *http.Request) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return
	}

	var u slot.Update
	if err := decodeJSON(r, &u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if u.IsEmpty() {
		writeBadRequest(w, "no fields to update")
		return
	}

	updated, err := s.registry.Update(r.Context(), n, u)
	if err != nil {
		s.writeSlotError(w, n, err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.audit.Record(&audit.Entry{
		Action:     audit.ActionUpdate,
		EntityType: audit.EntitySlot,
		EntityID:   strconv.Itoa(n),
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "slot updated",
		"data":    updated,
	})
}

// handleDeleteSlot soft-deletes a slot. Dependent data follows the
// registry's delete policy; the cached latest value is always dropped.
func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return
	}

	if err := s.registry.SoftDelete(r.Context(), n); err != nil {
		s.writeSlotError(w, n, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.DeleteLatest(r.Context(), n); err != nil {
			s.logger.Warn("dropping cached value failed", "slot", n, "error", err)
		}
	}

	claims := claimsFromContext(r.Context())
	s.audit.Record(&audit.Entry{
		Action:     audit.ActionDelete,
		EntityType: audit.EntitySlot,
		EntityID:   strconv.Itoa(n),
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"policy": s.registry.DeletePolicy()},
	})
	writeMessage(w, http.StatusOK, "slot deleted")
}

func (s *Server) writeSlotError(w http.ResponseWriter, n int, err error) {
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeNotFound(w, "slot not found")
	case errors.Is(err, slot.ErrDuplicateSlot):
		writeConflict(w, "slot number already in use")
	case errors.Is(err, slot.ErrOutOfRange):
		writeBadRequest(w, "slot number must be between 1 and "+strconv.Itoa(s.registry.MaxSlots()))
	case errors.Is(err, slot.ErrInvalidType):
		writeBadRequest(w, "type must be one of value, status, control, camera")
	case errors.Is(err, slot.ErrInvalidName):
		writeBadRequest(w, "name must not be empty")
	default:
		s.logger.Error("slot operation failed", "slot", n, "error", err)
		writeInternalError(w, "slot operation failed")
	}
}
