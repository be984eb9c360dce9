package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
)

// resetCodeSpace bounds the six-digit code.
var resetCodeSpace = big.NewInt(1_000_000)

// GenerateResetCode returns a uniformly random six-digit code.
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, resetCodeSpace)
	if err != nil {
		return "", fmt.Errorf("generating reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashToken computes the SHA-256 hash of a raw code for storage.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ResetCodeRepository defines the interface for reset code persistence.
type ResetCodeRepository interface {
	// Replace stores code and removes every older code of the same user.
	Replace(ctx context.Context, code *ResetCode) error

	// Consume checks codeHash against the user's unused, unexpired codes.
	// On a match all of the user's codes are removed.
	Consume(ctx context.Context, userID, codeHash string, now time.Time) error

	// DeleteExpired removes codes that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteResetCodeRepository implements ResetCodeRepository using SQLite.
type SQLiteResetCodeRepository struct {
	db *sql.DB
}

// NewResetCodeRepository creates a new SQLite-backed reset code repository.
func NewResetCodeRepository(db *sql.DB) *SQLiteResetCodeRepository {
	return &SQLiteResetCodeRepository{db: db}
}

// Replace inserts code in the same transaction that clears the user's
// previous codes.
func (r *SQLiteResetCodeRepository) Replace(ctx context.Context, code *ResetCode) error {
	if code.ID == "" {
		code.ID = "rc-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	code.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reset_codes WHERE user_id = ?", code.UserID); err != nil {
			return fmt.Errorf("clearing reset codes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reset_codes (id, user_id, code_hash, expires_at, used, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			code.ID, code.UserID, code.CodeHash,
			code.ExpiresAt.UTC().Format(time.RFC3339),
			boolToInt(code.Used), now,
		); err != nil {
			return fmt.Errorf("creating reset code: %w", err)
		}
		return nil
	})
}

// Consume validates and burns a code.
func (r *SQLiteResetCodeRepository) Consume(ctx context.Context, userID, codeHash string, now time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM reset_codes
			 WHERE user_id = ? AND code_hash = ? AND used = 0 AND expires_at > ?
			 LIMIT 1`,
			userID, codeHash, now.UTC().Format(time.RFC3339),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResetCodeInvalid
		}
		if err != nil {
			return fmt.Errorf("looking up reset code: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM reset_codes WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("consuming reset code: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes stale codes and returns how many were removed.
func (r *SQLiteResetCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM reset_codes WHERE expires_at <= ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired reset codes: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
