package slot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
)

// Repository defines slot persistence. Implementations only ever return
// active slots from the read methods.
type Repository interface {
	// ListActive returns active slots ordered by slot number.
	ListActive(ctx context.Context) ([]Slot, error)

	// GetActive returns the active slot with number n or ErrSlotNotFound.
	GetActive(ctx context.Context, n int) (*Slot, error)

	// Create inserts s and returns its row ID.
	// Returns ErrDuplicateSlot if the number is held by an active slot.
	Create(ctx context.Context, s *Slot) (int64, error)

	// Update writes the mutable fields of an active slot.
	Update(ctx context.Context, s *Slot) error

	// SoftDelete deactivates the slot. When purge is set the slot's
	// readings, camera image and alerts are removed in the same transaction.
	SoftDelete(ctx context.Context, n int, purge bool) error
}

// dependentTables hold rows keyed by slot_number that a cascading delete removes.
var dependentTables = []string{"slot_data", "camera_images", "alerts"}

const slotColumns = `id, slot_number, type, name, unit, icon, location, stream_url,
	threshold_min, threshold_max, is_active, created_at, updated_at`

// SQLiteRepository implements Repository on the slots table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed slot repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListActive returns active slots ordered by slot number.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE is_active = 1 ORDER BY slot_number`)
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	defer rows.Close()

	slots := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slots: %w", err)
	}
	return slots, nil
}

// GetActive returns the active slot with number n.
func (r *SQLiteRepository) GetActive(ctx context.Context, n int) (*Slot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE slot_number = ? AND is_active = 1`, n)
	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return s, nil
}

// Create inserts s, filling in ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, s *Slot) (int64, error) {
	now := time.Now().UTC().Truncate(time.Second)
	ts := now.Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO slots (slot_number, type, name, unit, icon, location, stream_url,
			threshold_min, threshold_max, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		s.SlotNumber, string(s.Type), s.Name, s.Unit, s.Icon, s.Location, s.StreamURL,
		nullFloat(s.ThresholdMin), nullFloat(s.ThresholdMax), ts, ts,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateSlot
		}
		return 0, fmt.Errorf("creating slot %d: %w", s.SlotNumber, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading slot id: %w", err)
	}
	s.ID = id
	s.IsActive = true
	s.CreatedAt = now
	s.UpdatedAt = now
	return id, nil
}

// Update writes the display fields and thresholds of an active slot.
func (r *SQLiteRepository) Update(ctx context.Context, s *Slot) error {
	now := time.Now().UTC().Truncate(time.Second)

	result, err := r.db.ExecContext(ctx,
		`UPDATE slots SET name = ?, unit = ?, icon = ?, location = ?, stream_url = ?,
			threshold_min = ?, threshold_max = ?, updated_at = ?
		 WHERE slot_number = ? AND is_active = 1`,
		s.Name, s.Unit, s.Icon, s.Location, s.StreamURL,
		nullFloat(s.ThresholdMin), nullFloat(s.ThresholdMax), now.Format(time.RFC3339),
		s.SlotNumber,
	)
	if err != nil {
		return fmt.Errorf("updating slot %d: %w", s.SlotNumber, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrSlotNotFound
	}
	s.UpdatedAt = now
	return nil
}

// SoftDelete deactivates slot n and optionally purges its dependent rows.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, n int, purge bool) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE slots SET is_active = 0, updated_at = ? WHERE slot_number = ? AND is_active = 1`,
			time.Now().UTC().Format(time.RFC3339), n)
		if err != nil {
			return fmt.Errorf("deactivating slot %d: %w", n, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrSlotNotFound
		}

		if !purge {
			return nil
		}
		for _, table := range dependentTables {
			//nolint:gosec // table names come from a fixed list
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE slot_number = ?", n); err != nil {
				return fmt.Errorf("purging %s for slot %d: %w", table, n, err)
			}
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(s scanner) (*Slot, error) {
	var (
		sl                   Slot
		typ                  string
		tMin, tMax           sql.NullFloat64
		isActive             int
		createdAt, updatedAt string
	)
	err := s.Scan(&sl.ID, &sl.SlotNumber, &typ, &sl.Name, &sl.Unit, &sl.Icon,
		&sl.Location, &sl.StreamURL, &tMin, &tMax, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning slot: %w", err)
	}

	sl.Type = Type(typ)
	sl.IsActive = isActive != 0
	if tMin.Valid {
		sl.ThresholdMin = &tMin.Float64
	}
	if tMax.Valid {
		sl.ThresholdMax = &tMax.Float64
	}
	sl.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	sl.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &sl, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
