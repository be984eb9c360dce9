package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// emailPattern is a pragmatic shape check, not RFC 5322.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxEmailLength = 254

	// MinPasswordLength is the default shortest password accepted on register
	// and reset.
	MinPasswordLength = 6

	// DefaultResetPassword is applied by an admin reset when no password is given.
	DefaultResetPassword = "123456"
)

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks the format of an already normalised address.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser can read slots, readings, camera images and alerts.
	RoleUser Role = "user"

	// RoleOperator can additionally send control commands.
	RoleOperator Role = "operator"

	// RoleAdmin manages slots, users and the system.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable roles.
var ValidRoles = []Role{RoleUser, RoleOperator, RoleAdmin}

// IsValidRole returns true if r can be assigned to an account.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetCode is a stored password reset code. Only the hash is kept.
type ResetCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrEmailExists        = errors.New("auth: email already registered")
	ErrInvalidEmail       = errors.New("auth: invalid email address")
	ErrInvalidRole        = errors.New("auth: invalid role")
	ErrWeakPassword       = errors.New("auth: password too short")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrResetCodeInvalid   = errors.New("auth: invalid or expired reset code")
	ErrForbidden          = errors.New("auth: insufficient permissions")
	ErrSelfModification   = errors.New("auth: cannot modify own account in this way")
)
