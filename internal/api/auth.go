package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/auth"
)

type registerRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Name     string    `json:"name"`
	Role     auth.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// userResponse is the public view of an account.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// handleRegister creates an account. Anonymous callers always get the user
// role; an admin token may pick any role.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	in := auth.RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name, Role: auth.RoleUser}
	if claims := s.optionalClaims(r); claims != nil && auth.HasPermission(claims.Role, auth.PermUserManage) {
		in.CreatedBy = claims.Subject
		if req.Role != "" {
			in.Role = req.Role
		}
	}

	user, err := s.authSvc.Register(r.Context(), in)
	switch {
	case errors.Is(err, auth.ErrEmailExists):
		writeBadRequest(w, "email already exists")
		return
	case errors.Is(err, auth.ErrInvalidEmail):
		writeBadRequest(w, "invalid email address")
		return
	case errors.Is(err, auth.ErrWeakPassword):
		s.writeWeakPassword(w)
		return
	case errors.Is(err, auth.ErrInvalidRole):
		writeBadRequest(w, "invalid role")
		return
	case err != nil:
		s.logger.Error("registration failed", "error", err)
		writeInternalError(w, "registration failed")
		return
	}

	s.audit.Record(&audit.Entry{
		Action:     audit.ActionRegister,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     in.CreatedBy,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"email": user.Email, "role": user.Role},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "registration successful",
		"user_id": user.ID,
	})
}

// handleLogin authenticates credentials and returns a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	token, user, err := s.authSvc.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid email or password")
		return
	case errors.Is(err, auth.ErrUserInactive):
		writeForbidden(w, "account is disabled")
		return
	case err != nil:
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.audit.Record(&audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     audit.SourceAPI,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "login successful",
		"token":   token,
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"role":  user.Role,
		},
	})
}

// handleForgotPassword issues a reset code. The code is only echoed back in
// dev mode; otherwise it goes to the log for the operator to relay.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	code, expires, err := s.authSvc.IssueResetCode(r.Context(), req.Email)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeBadRequest(w, "email not found")
		return
	case err != nil:
		s.logger.Error("issuing reset code failed", "error", err)
		writeInternalError(w, "could not issue reset code")
		return
	}

	s.logger.Info("password reset code issued", "email", auth.NormalizeEmail(req.Email), "expires_at", expires)

	resp := map[string]any{
		"success":    true,
		"message":    "reset code issued",
		"expires_at": expires.Format(time.RFC3339),
	}
	if s.cfg.DevMode {
		resp["code"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleResetPassword consumes a reset code and sets the new password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		writeBadRequest(w, "email, code and new_password are required")
		return
	}

	err := s.authSvc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		s.writeWeakPassword(w)
		return
	case errors.Is(err, auth.ErrResetCodeInvalid):
		writeBadRequest(w, "invalid or expired code")
		return
	case err != nil:
		s.logger.Error("password reset failed", "error", err)
		writeInternalError(w, "password reset failed")
		return
	}

	s.audit.Record(&audit.Entry{
		Action:     audit.ActionResetPassword,
		EntityType: audit.EntityUser,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"email": auth.NormalizeEmail(req.Email)},
	})
	writeMessage(w, http.StatusOK, "password reset successful")
}

// handleMe returns the authenticated account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("loading current user failed", "error", err)
		writeInternalError(w, "failed to load user")
		return
	}

	resp := toUserResponse(user)
	writeData(w, http.StatusOK, map[string]any{
		"user":        resp,
		"permissions": auth.PermissionsForRole(user.Role),
	})
}

func (s *Server) writeWeakPassword(w http.ResponseWriter) {
	writeBadRequest(w, fmt.Sprintf("password must be at least %d characters", s.authSvc.PasswordPolicy().MinLength))
}
