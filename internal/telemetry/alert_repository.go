package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AlertRepository persists threshold alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	List(ctx context.Context, limit int) ([]Alert, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) (int64, error)
	UnreadCount(ctx context.Context) (int, error)
	DeleteBySlot(ctx context.Context, slotNumber int) (int64, error)
}

// SQLiteAlertRepository implements AlertRepository.
type SQLiteAlertRepository struct {
	db *sql.DB
}

// NewSQLiteAlertRepository creates an alert repository on db.
func NewSQLiteAlertRepository(db *sql.DB) *SQLiteAlertRepository {
	return &SQLiteAlertRepository{db: db}
}

// Create inserts alert and fills in its ID. CreatedAt defaults to now.
func (r *SQLiteAlertRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	alert.CreatedAt = alert.CreatedAt.UTC().Truncate(time.Millisecond)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (slot_number, alert_type, message, is_read, created_at) VALUES (?, ?, ?, 0, ?)`,
		alert.SlotNumber, string(alert.Type), alert.Message, formatTime(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	if alert.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading alert id: %w", err)
	}
	alert.IsRead = false
	return nil
}

// List returns the newest alerts first. limit <= 0 means DefaultAlertLimit.
func (r *SQLiteAlertRepository) List(ctx context.Context, limit int) ([]Alert, error) {
	limit = clampLimit(limit, DefaultAlertLimit, MaxAlertLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, slot_number, alert_type, message, is_read, created_at FROM alerts
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var (
			a         Alert
			typ       string
			isRead    int
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.SlotNumber, &typ, &a.Message, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Type = AlertType(typ)
		a.IsRead = isRead != 0
		a.CreatedAt = parseTime(createdAt)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// MarkRead flags one alert as read. Marking an already-read alert succeeds.
func (r *SQLiteAlertRepository) MarkRead(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking alert %d read: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrAlertNotFound
	}
	return nil
}

// MarkAllRead flags every unread alert and returns how many changed.
func (r *SQLiteAlertRepository) MarkAllRead(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, fmt.Errorf("marking all alerts read: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// UnreadCount returns the number of unread alerts.
func (r *SQLiteAlertRepository) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE is_read = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread alerts: %w", err)
	}
	return n, nil
}

// DeleteBySlot removes every alert of a slot.
func (r *SQLiteAlertRepository) DeleteBySlot(ctx context.Context, slotNumber int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE slot_number = ?`, slotNumber)
	if err != nil {
		return 0, fmt.Errorf("deleting alerts for slot %d: %w", slotNumber, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
