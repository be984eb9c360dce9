package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// handleListAlerts returns the newest alerts first (?limit=, default 50).
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.List(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("listing alerts failed", "error", err)
		writeInternalError(w, "failed to list alerts")
		return
	}
	writeData(w, http.StatusOK, alerts)
}

// handleMarkAlertRead flags one alert as read.
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid alert id")
		return
	}

	err = s.alerts.MarkRead(r.Context(), id)
	if errors.Is(err, telemetry.ErrAlertNotFound) {
		writeNotFound(w, "alert not found")
		return
	}
	if err != nil {
		s.logger.Error("marking alert read failed", "alert_id", id, "error", err)
		writeInternalError(w, "failed to update alert")
		return
	}
	writeMessage(w, http.StatusOK, "alert marked as read")
}

// handleMarkAllAlertsRead flags every unread alert.
func (s *Server) handleMarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.alerts.MarkAllRead(r.Context())
	if err != nil {
		s.logger.Error("marking alerts read failed", "error", err)
		writeInternalError(w, "failed to update alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "all alerts marked as read",
		"updated": n,
	})
}

// handleUnreadCount returns the number of unread alerts.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.alerts.UnreadCount(r.Context())
	if err != nil {
		s.logger.Error("counting unread alerts failed", "error", err)
		writeInternalError(w, "failed to count alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": n})
}
