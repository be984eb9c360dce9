package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database ping of /api/health.
const healthCheckTimeout = 2 * time.Second

// MQTTStatus describes the broker connection.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Port      int    `json:"port"`
}

func (s *Server) mqttStatus() MQTTStatus {
	return MQTTStatus{
		Connected: s.mqttConnected(),
		Broker:    s.broker.Host,
		Port:      s.broker.Port,
	}
}

// handleRoot returns a banner with the endpoint groups.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Slotlink IoT backend is running",
		"mqtt":    s.mqttStatus(),
		"version": s.version,
		"endpoints": map[string][]string{
			"auth":    {"/api/auth/login", "/api/auth/register"},
			"slots":   {"/api/slots", "/api/slots/{n}"},
			"data":    {"/api/data", "/api/data/{n}"},
			"camera":  {"/api/camera/{n}"},
			"control": {"/api/control/{n}"},
			"alerts":  {"/api/alerts"},
			"admin":   {"/api/admin/users", "/api/admin/audit"},
			"live":    {"/api/ws"},
		},
	})
}

// handleHealth reports whether the database answers. MQTT being down does not
// make the server unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	dbStatus := "ok"

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			dbStatus = "error"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":   status,
		"database": dbStatus,
		"mqtt":     s.mqttStatus(),
		"version":  s.version,
	})
}

// handleMQTTStatus reports the broker connection and listener counters.
func (s *Server) handleMQTTStatus(w http.ResponseWriter, _ *http.Request) {
	data := map[string]any{
		"connected": s.mqttConnected(),
		"broker":    s.broker.Host,
		"port":      s.broker.Port,
	}
	if s.listener != nil {
		data["listener_state"] = s.listener.State()
		data["stats"] = s.listener.Stats()
		data["devices"] = s.listener.DeviceStatus()
	}
	writeData(w, http.StatusOK, data)
}
