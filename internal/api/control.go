package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/control"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

type controlRequest struct {
	Command any `json:"command"`
}

var commandLabels = map[control.Command]string{
	control.CommandOff: "OFF",
	control.CommandOn:  "ON",
}

// handleControl publishes an on/off command to a control slot.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	n, ok := slotParam(r)
	if !ok {
		writeBadRequest(w, "invalid slot number")
		return
	}

	var req controlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	cmd, err := control.ParseCommand(req.Command)
	if err != nil {
		writeBadRequest(w, "command must be 0 or 1")
		return
	}

	if s.dispatch == nil {
		writeInternalError(w, "MQTT is not connected")
		return
	}

	err = s.dispatch.Dispatch(r.Context(), n, cmd)
	switch {
	case errors.Is(err, control.ErrInvalidCommand):
		writeBadRequest(w, "command must be 0 or 1")
		return
	case errors.Is(err, slot.ErrSlotNotFound):
		writeNotFound(w, "slot not found")
		return
	case errors.Is(err, control.ErrInvalidSlot):
		writeBadRequest(w, "slot is not a control slot")
		return
	case errors.Is(err, control.ErrTransportUnavailable):
		writeInternalError(w, "MQTT is not connected")
		return
	case err != nil:
		s.logger.Error("control command failed", "slot", n, "error", err)
		writeInternalError(w, "command sent but could not be recorded")
		return
	}

	claims := claimsFromContext(r.Context())
	s.audit.Record(&audit.Entry{
		Action:     audit.ActionCommand,
		EntityType: audit.EntitySlot,
		EntityID:   strconv.Itoa(n),
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"command": int(cmd)},
	})

	writeMessage(w, http.StatusOK, fmt.Sprintf("sent %s to Slot %d", commandLabels[cmd], n))
}
