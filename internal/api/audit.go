package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/slotlink-core/internal/audit"
)

// handleListAuditLogs returns audit entries newest first.
// Query: action, entity_type, entity_id, user_id, limit, offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeData(w, http.StatusOK, audit.ListResult{Logs: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
		Limit:      limitParam(r),
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeData(w, http.StatusOK, result)
}
