package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// xlsxContentType is the MIME type of an Office Open XML workbook.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type pushReadingRequest struct {
	Slot  any `json:"slot"`
	Value any `json:"value"`
}

// intFromJSON accepts integral JSON numbers and numeric strings.
func intFromJSON(raw any) (int, bool) {
	switch v := raw.(type) {
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// limitParam reads ?limit=. Missing or malformed values yield 0, which the
// repositories treat as their default.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// handleLatestAll returns the newest reading of every active slot, keyed by
// slot number. Cached values are served first; SQLite fills any misses.
func (s *Server) handleLatestAll(w http.ResponseWriter, r *http.Request) {
	latest, misses := s.cachedLatestAll(r)
	if latest == nil || misses {
		stored, err := s.readings.LatestAll(r.Context())
		if err != nil {
			s.logger.Error("loading latest readings failed", "error", err)
			writeInternalError(w, "failed to load readings")
			return
		}
		if latest == nil {
			latest = stored
		}
		for n, reading := range stored {
			if _, ok := latest[n]; !ok {
				latest[n] = reading
			}
		}
	}
	writeData(w, http.StatusOK, latestByNumber(latest))
}

// cachedLatestAll reads every active slot from the cache. It returns nil when
// there is no cache and reports whether any slot missed.
func (s *Server) cachedLatestAll(r *http.Request) (map[int]*telemetry.Reading, bool) {
	if s.cache == nil {
		return nil, true
	}
	active, err := s.registry.GetActive(r.Context())
	if err != nil {
		return nil, true
	}

	latest := make(map[int]*telemetry.Reading, len(active))
	misses := false
	for _, sl := range active {
		if reading := s.cachedLatest(r, sl.SlotNumber); reading != nil {
			latest[sl.SlotNumber] = reading
		} else {
			misses = true
		}
	}
	return latest, misses
}

// cachedLatest returns the cached reading of slot n, or nil on a miss or
// cache error.
func (s *Server) cachedLatest(r *http.Request, n int) *telemetry.Reading {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetLatest(r.Context(), n)
	if err != nil {
		s.logger.Warn("reading cached value failed", "slot", n, "error", err)
		return nil
	}
	if cached == nil {
		return nil
	}
	return &telemetry.Reading{ID: cached.ID, SlotNumber: n, Value: cached.Value, CreatedAt: cached.At}
}

func latestByNumber(latest map[int]*telemetry.Reading) map[string]*telemetry.Reading {
	out := make(map[string]*telemetry.Reading, len(latest))
	for n, reading := range latest {
		out[strconv.Itoa(n)] = reading
	}
	return out
}

// handlePushReading ingests a reading sent over HTTP by a device.
func (s *Server) handlePushReading(w http.ResponseWriter, r *http.Request) {
	var req pushReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Slot == nil || req.Value == nil {
		writeBadRequest(w, "slot and value are required")
		return
	}
	n, ok := intFromJSON(req.Slot)
	if !ok {
		writeBadRequest(w, "slot must be an integer")
		return
	}

	reading, err := s.ingestor.Ingest(r.Context(), n, req.Value)
	if errors.Is(err, telemetry.ErrUnknownSlot) {
		writeNotFound(w, fmt.Sprintf("slot %d not found", n))
		return
	}
	if err != nil {
		s.logger.Error("storing reading failed", "slot", n, "error", err)
		writeInternalError(w, "failed to store reading")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "data saved",
		"data":    reading,
	})
}

// handleLatest returns the newest reading of one slot, from the cache when
// it holds one; data is null when the slot has none yet.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.activeSlot(w, r)
	if !ok {
		return
	}

	if reading := s.cachedLatest(r, sl.SlotNumber); reading != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": reading})
		return
	}

	reading, err := s.readings.Latest(r.Context(), sl.SlotNumber)
	if err != nil {
		s.logger.Error("loading latest reading failed", "slot", sl.SlotNumber, "error", err)
		writeInternalError(w, "failed to load reading")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": reading})
}

// handleHistory returns readings newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.activeSlot(w, r)
	if !ok {
		return
	}

	history, err := s.readings.History(r.Context(), sl.SlotNumber, limitParam(r))
	if err != nil {
		s.logger.Error("loading history failed", "slot", sl.SlotNumber, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	writeData(w, http.StatusOK, history)
}

// handleExportHistory streams the history as an XLSX workbook.
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.activeSlot(w, r)
	if !ok {
		return
	}

	history, err := s.readings.History(r.Context(), sl.SlotNumber, limitParam(r))
	if err != nil {
		s.logger.Error("loading history failed", "slot", sl.SlotNumber, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}

	workbook, err := buildHistoryWorkbook(sl, history)
	if err != nil {
		s.logger.Error("building history workbook failed", "slot", sl.SlotNumber, "error", err)
		writeInternalError(w, "failed to export history")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="slot-%d-history.xlsx"`, sl.SlotNumber))
	w.Header().Set("Content-Length", strconv.Itoa(len(workbook)))
	w.WriteHeader(http.StatusOK)
	w.Write(workbook) //nolint:errcheck // Best-effort write to response
}

// activeSlot resolves {n} to an active slot, writing the error response
// itself when it cannot.
func (s *Server) activeSlot(w http.ResponseWriter, r *http.Request) (*slot.Slot, bool) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return nil, false
	}
	sl, err := s.registry.GetByNumber(r.Context(), n)
	if errors.Is(err, slot.ErrSlotNotFound) {
		writeNotFound(w, "slot not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("loading slot failed", "slot", n, "error", err)
		writeInternalError(w, "failed to load slot")
		return nil, false
	}
	return sl, true
}
