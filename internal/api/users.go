package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/auth"
)

type updateRoleRequest struct {
	Role auth.Role `json:"role"`
}

type adminResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// handleListUsers returns every account.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	writeData(w, http.StatusOK, out)
}

// handleGetUser returns one account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("loading user failed", "error", err)
		writeInternalError(w, "failed to load user")
		return
	}
	writeData(w, http.StatusOK, toUserResponse(user))
}

// handleUpdateUserRole changes another account's role.
func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())
	err := s.authSvc.UpdateRole(r.Context(), claims.Subject, id, req.Role)
	switch {
	case errors.Is(err, auth.ErrInvalidRole):
		writeBadRequest(w, "role must be one of admin, operator, user")
		return
	case errors.Is(err, auth.ErrSelfModification):
		writeBadRequest(w, "cannot change your own role")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
		return
	case err != nil:
		s.logger.Error("updating role failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to update role")
		return
	}

	s.audit.Record(&audit.Entry{
		Action:     audit.ActionUpdateRole,
		EntityType: audit.EntityUser,
		EntityID:   id,
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"role": req.Role},
	})
	writeMessage(w, http.StatusOK, "role updated")
}

// handleAdminResetPassword sets an account's password without a code.
// An omitted password falls back to auth.DefaultResetPassword.
func (s *Server) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adminResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	applied, err := s.authSvc.AdminResetPassword(r.Context(), id, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		s.writeWeakPassword(w)
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
		return
	case err != nil:
		s.logger.Error("admin password reset failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to reset password")
		return
	}

	claims := claimsFromContext(r.Context())
	s.audit.Record(&audit.Entry{
		Action:     audit.ActionResetPassword,
		EntityType: audit.EntityUser,
		EntityID:   id,
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
	})

	resp := map[string]any{"success": true, "message": "password reset"}
	if req.NewPassword == "" {
		resp["new_password"] = applied
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteUser removes another account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	err := s.authSvc.DeleteUser(r.Context(), claims.Subject, id)
	switch {
	case errors.Is(err, auth.ErrSelfModification):
		writeBadRequest(w, "cannot delete your own account")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
		return
	case err != nil:
		s.logger.Error("deleting user failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.audit.Record(&audit.Entry{
		Action:     audit.ActionDelete,
		EntityType: audit.EntityUser,
		EntityID:   id,
		UserID:     claims.Subject,
		Source:     audit.SourceAPI,
	})
	writeMessage(w, http.StatusOK, "user deleted")
}
