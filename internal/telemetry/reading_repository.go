package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadingRepository persists the append-only slot_data series.
type ReadingRepository interface {
	// Append stores a reading stamped with at. It returns ErrUnknownSlot
	// unless the slot is active.
	Append(ctx context.Context, slotNumber int, value string, at time.Time) (*Reading, error)

	// Latest returns the newest reading for a slot, or nil when there is none.
	Latest(ctx context.Context, slotNumber int) (*Reading, error)

	// LatestAll returns the newest reading of every active slot that has one.
	LatestAll(ctx context.Context) (map[int]*Reading, error)

	// History returns up to limit readings, newest first.
	History(ctx context.Context, slotNumber, limit int) ([]Reading, error)

	// DeleteBySlot removes every reading of a slot.
	DeleteBySlot(ctx context.Context, slotNumber int) (int64, error)
}

// SQLiteReadingRepository implements ReadingRepository.
type SQLiteReadingRepository struct {
	db *sql.DB
}

// NewSQLiteReadingRepository creates a reading repository on db.
func NewSQLiteReadingRepository(db *sql.DB) *SQLiteReadingRepository {
	return &SQLiteReadingRepository{db: db}
}

// Append stores a reading. The insert only happens while the slot is active,
// so a reading racing a cascading delete cannot outlive the purge; in that
// case ErrUnknownSlot is returned.
func (r *SQLiteReadingRepository) Append(ctx context.Context, slotNumber int, value string, at time.Time) (*Reading, error) {
	at = at.UTC().Truncate(time.Millisecond)

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO slot_data (slot_number, value, created_at)
		SELECT ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM slots WHERE slot_number = ? AND is_active = 1)`,
		slotNumber, value, formatTime(at), slotNumber)
	if err != nil {
		return nil, fmt.Errorf("inserting reading for slot %d: %w", slotNumber, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // always succeeds on SQLite
		return nil, fmt.Errorf("%w: %d", ErrUnknownSlot, slotNumber)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}

	return &Reading{ID: id, SlotNumber: slotNumber, Value: value, CreatedAt: at}, nil
}

// Latest orders by created_at then id, so readings sharing a millisecond
// resolve to the one inserted last.
func (r *SQLiteReadingRepository) Latest(ctx context.Context, slotNumber int) (*Reading, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, slot_number, value, created_at FROM slot_data
		 WHERE slot_number = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, slotNumber)

	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return reading, err
}

// LatestAll returns the newest reading per active slot.
func (r *SQLiteReadingRepository) LatestAll(ctx context.Context) (map[int]*Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.slot_number, d.value, d.created_at
		FROM slots s
		JOIN slot_data d ON d.id = (
			SELECT x.id FROM slot_data x
			WHERE x.slot_number = s.slot_number
			ORDER BY x.created_at DESC, x.id DESC
			LIMIT 1
		)
		WHERE s.is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying latest readings: %w", err)
	}
	defer rows.Close()

	latest := make(map[int]*Reading)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		latest[reading.SlotNumber] = reading
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest readings: %w", err)
	}
	return latest, nil
}

// History returns readings newest first. limit <= 0 means DefaultHistoryLimit;
// it is capped at MaxHistoryLimit.
func (r *SQLiteReadingRepository) History(ctx context.Context, slotNumber, limit int) ([]Reading, error) {
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, slot_number, value, created_at FROM slot_data
		 WHERE slot_number = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, slotNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history for slot %d: %w", slotNumber, err)
	}
	defer rows.Close()

	history := make([]Reading, 0, limit)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return history, nil
}

// DeleteBySlot removes every reading of a slot.
func (r *SQLiteReadingRepository) DeleteBySlot(ctx context.Context, slotNumber int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM slot_data WHERE slot_number = ?`, slotNumber)
	if err != nil {
		return 0, fmt.Errorf("deleting readings for slot %d: %w", slotNumber, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (*Reading, error) {
	var (
		reading   Reading
		createdAt string
	)
	if err := s.Scan(&reading.ID, &reading.SlotNumber, &reading.Value, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning reading: %w", err)
	}
	reading.CreatedAt = parseTime(createdAt)
	return &reading, nil
}
