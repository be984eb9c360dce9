package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// DefaultAdminEmail is the seed account used when none is configured.
const DefaultAdminEmail = "admin@admin.com"

// SeedAdmin creates the first admin account when no users exist. An empty
// password is replaced by a random one, which is logged and returned so it
// can be changed. The password is hashed with policy but not checked against
// its minimum length. Returns the empty string when seeding was skipped.
func SeedAdmin(ctx context.Context, userRepo UserRepository, email, password string, policy PasswordPolicy, logger *slog.Logger) (string, error) {
	count, err := userRepo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}

	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	if email == "" {
		email = DefaultAdminEmail
	}

	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := policy.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"email", admin.Email,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "email", admin.Email)
	}

	return password, nil
}
