package camera

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

// DefaultMaxImageSize is the largest accepted image payload in bytes.
const DefaultMaxImageSize = 500 * 1024

const timeLayout = "2006-01-02T15:04:05.000Z"

// Image is the latest frame of a camera slot.
type Image struct {
	SlotNumber int       `json:"slot_number"`
	ImageData  string    `json:"image_data"`
	CreatedAt  time.Time `json:"created_at"`
}

// SlotLookup resolves active slots. *slot.Registry satisfies it.
type SlotLookup interface {
	GetByNumber(ctx context.Context, n int) (*slot.Slot, error)
}

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store persists camera frames in SQLite.
type Store struct {
	db      *sql.DB
	slots   SlotLookup
	maxSize int
	logger  Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[int]*sync.Mutex
}

// NewStore creates a Store. maxSize <= 0 means DefaultMaxImageSize.
func NewStore(db *sql.DB, slots SlotLookup, maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	return &Store{
		db:      db,
		slots:   slots,
		maxSize: maxSize,
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[int]*sync.Mutex),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// MaxImageSize returns the configured size limit in bytes.
func (s *Store) MaxImageSize() int {
	return s.maxSize
}

// Save replaces the stored frame of camera slot n.
func (s *Store) Save(ctx context.Context, n int, imageData string) (*Image, error) {
	if imageData == "" {
		return nil, ErrEmptyImage
	}
	if len(imageData) > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, len(imageData), s.maxSize)
	}
	if err := s.checkCameraSlot(ctx, n); err != nil {
		return nil, err
	}

	lock := s.slotLock(n)
	lock.Lock()
	defer lock.Unlock()

	img := &Image{SlotNumber: n, ImageData: imageData, CreatedAt: s.now()}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM camera_images WHERE slot_number = ?`, n); err != nil {
			return fmt.Errorf("removing previous image: %w", err)
		}
		// Re-checked inside the transaction so a frame cannot survive a
		// cascading delete that ran after checkCameraSlot.
		result, err := tx.ExecContext(ctx, `
			INSERT INTO camera_images (slot_number, image_data, created_at)
			SELECT ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM slots WHERE slot_number = ? AND type = 'camera' AND is_active = 1)`,
			n, imageData, img.CreatedAt.Format(timeLayout), n)
		if err != nil {
			return fmt.Errorf("inserting image: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrInvalidSlot
		}
		return nil
	})
	if errors.Is(err, ErrInvalidSlot) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, n)
	}
	if err != nil {
		return nil, fmt.Errorf("saving image for slot %d: %w", n, err)
	}

	s.logger.Debug("camera image saved", "slot", n, "bytes", len(imageData))
	return img, nil
}

// Get returns the latest frame of slot n, or nil if none has been saved.
func (s *Store) Get(ctx context.Context, n int) (*Image, error) {
	var (
		img       Image
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT slot_number, image_data, created_at FROM camera_images WHERE slot_number = ?`, n,
	).Scan(&img.SlotNumber, &img.ImageData, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no image yet is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("querying image for slot %d: %w", n, err)
	}
	img.CreatedAt, _ = time.Parse(timeLayout, createdAt) //nolint:errcheck // written by Save
	return &img, nil
}

// DeleteBySlot removes the stored frame of slot n.
func (s *Store) DeleteBySlot(ctx context.Context, n int) error {
	lock := s.slotLock(n)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM camera_images WHERE slot_number = ?`, n); err != nil {
		return fmt.Errorf("deleting image for slot %d: %w", n, err)
	}
	return nil
}

func (s *Store) checkCameraSlot(ctx context.Context, n int) error {
	sl, err := s.slots.GetByNumber(ctx, n)
	if errors.Is(err, slot.ErrSlotNotFound) {
		return fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	if err != nil {
		return err
	}
	if sl.Type != slot.TypeCamera {
		return fmt.Errorf("%w: slot %d is %s", ErrInvalidSlot, n, sl.Type)
	}
	return nil
}

func (s *Store) slotLock(n int) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[n]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[n] = lock
	}
	return lock
}
