package api

import (
	"net/http"

	"github.com/nerrad567/slotlink-core/internal/slot"
)

// dashboardAlertLimit is how many recent alerts the full dashboard carries.
const dashboardAlertLimit = 10

// DashboardStats summarises the installation.
type DashboardStats struct {
	TotalSlots    int `json:"total_slots"`
	TotalCameras  int `json:"total_cameras"`
	TotalControls int `json:"total_controls"`
	UnreadAlerts  int `json:"unread_alerts"`
}

func (s *Server) dashboardStats(r *http.Request) (DashboardStats, error) {
	unread, err := s.alerts.UnreadCount(r.Context())
	if err != nil {
		return DashboardStats{}, err
	}
	return DashboardStats{
		TotalSlots:    s.registry.Count(),
		TotalCameras:  s.registry.CountByType(slot.TypeCamera),
		TotalControls: s.registry.CountByType(slot.TypeControl),
		UnreadAlerts:  unread,
	}, nil
}

// handleDashboardStats returns slot and alert counters.
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboardStats(r)
	if err != nil {
		s.logger.Error("loading dashboard stats failed", "error", err)
		writeInternalError(w, "failed to load stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

// handleDashboardFull returns everything the dashboard renders in one call.
func (s *Server) handleDashboardFull(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboardStats(r)
	if err != nil {
		s.logger.Error("loading dashboard stats failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}
	slots, err := s.registry.GetActive(r.Context())
	if err != nil {
		s.logger.Error("listing slots failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}
	latest, err := s.readings.LatestAll(r.Context())
	if err != nil {
		s.logger.Error("loading latest readings failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}
	alerts, err := s.alerts.List(r.Context(), dashboardAlertLimit)
	if err != nil {
		s.logger.Error("listing alerts failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
		"slots":   slots,
		"data":    latestByNumber(latest),
		"alerts":  alerts,
		"mqtt":    s.mqttStatus(),
	})
}
