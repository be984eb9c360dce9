package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultResetCodeTTL is how long a reset code stays valid when no TTL is configured.
const DefaultResetCodeTTL = 15 * time.Minute

// ServiceConfig holds the token settings of a Service.
type ServiceConfig struct {
	JWTSecret      string
	AccessTokenTTL int // minutes
	ResetCodeTTL   time.Duration
	Password       PasswordPolicy // zero fields take DefaultPasswordPolicy
}

// Service implements the account flows on top of the repositories.
type Service struct {
	users UserRepository
	codes ResetCodeRepository
	cfg   ServiceConfig
	now   func() time.Time
}

// NewService creates an account service.
func NewService(users UserRepository, codes ResetCodeRepository, cfg ServiceConfig) *Service {
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = DefaultResetCodeTTL
	}
	cfg.Password = cfg.Password.withDefaults()
	return &Service{users: users, codes: codes, cfg: cfg, now: time.Now}
}

// PasswordPolicy returns the policy applied to new passwords.
func (s *Service) PasswordPolicy() PasswordPolicy {
	return s.cfg.Password
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Role      Role
	CreatedBy string
}

// Register validates in and creates the account. An empty role means RoleUser.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := s.cfg.Password.Validate(in.Password); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	hash, err := s.cfg.Password.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedBy:    in.CreatedBy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrUserInactive
	}

	token, err := GenerateAccessToken(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Authenticate parses an access token.
func (s *Service) Authenticate(token string) (*CustomClaims, error) {
	return ParseToken(token, s.cfg.JWTSecret)
}

// IssueResetCode creates a reset code for email, invalidating older ones.
// The plain code is returned to the caller and never stored.
func (s *Service) IssueResetCode(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, err
	}

	code, err := GenerateResetCode()
	if err != nil {
		return "", time.Time{}, err
	}

	expires := s.now().UTC().Add(s.cfg.ResetCodeTTL)
	if err := s.codes.Replace(ctx, &ResetCode{
		UserID:    user.ID,
		CodeHash:  HashToken(code),
		ExpiresAt: expires,
	}); err != nil {
		return "", time.Time{}, err
	}
	return code, expires, nil
}

// ResetPassword consumes code and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.cfg.Password.Validate(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return ErrResetCodeInvalid
	}
	if err != nil {
		return err
	}

	if err := s.codes.Consume(ctx, user.ID, HashToken(strings.TrimSpace(code)), s.now()); err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

// AdminResetPassword sets a password without a code. An empty password
// means DefaultResetPassword. The applied password is returned.
func (s *Service) AdminResetPassword(ctx context.Context, userID, newPassword string) (string, error) {
	if newPassword == "" {
		newPassword = DefaultResetPassword
	}
	if err := s.cfg.Password.Validate(newPassword); err != nil {
		return "", err
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return "", err
	}
	return newPassword, nil
}

// UpdateRole changes another account's role.
func (s *Service) UpdateRole(ctx context.Context, actorID, userID string, role Role) error {
	if !IsValidRole(role) {
		return ErrInvalidRole
	}
	if actorID == userID {
		return ErrSelfModification
	}
	return s.users.UpdateRole(ctx, userID, role)
}

// DeleteUser removes another account.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return ErrSelfModification
	}
	return s.users.Delete(ctx, userID)
}

// PurgeExpiredCodes removes stale reset codes.
func (s *Service) PurgeExpiredCodes(ctx context.Context) (int64, error) {
	return s.codes.DeleteExpired(ctx, s.now())
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	hash, err := s.cfg.Password.Hash(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}
