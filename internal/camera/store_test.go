package camera

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	"github.com/nerrad567/slotlink-core/internal/slot"
	_ "github.com/nerrad567/slotlink-core/migrations"
)

func setupStore(t *testing.T, maxSize int) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "camera.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	registry := slot.NewRegistry(slot.NewSQLiteRepository(db.DB), slot.Options{})
	for _, s := range []slot.Slot{
		{SlotNumber: 1, Type: slot.TypeCamera, Name: "Gate"},
		{SlotNumber: 2, Type: slot.TypeValue, Name: "Temp"},
	} {
		if _, err := registry.Create(ctx, &s); err != nil {
			t.Fatalf("Create(slot %d) error = %v", s.SlotNumber, err)
		}
	}

	return NewStore(db.DB, registry, maxSize)
}

func TestStore_SaveGet(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	img, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if img != nil {
		t.Fatalf("Get() before save = %+v, want nil", img)
	}

	if _, err := store.Save(ctx, 1, "data:image/jpeg;base64,AAAA"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Save(ctx, 1, "data:image/jpeg;base64,BBBB"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	img, err = store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if img == nil || img.ImageData != "data:image/jpeg;base64,BBBB" {
		t.Errorf("Get() = %+v, want the second frame", img)
	}
	if img.CreatedAt.IsZero() {
		t.Error("Get() CreatedAt is zero")
	}
}

func TestStore_SaveErrors(t *testing.T) {
	store := setupStore(t, 16)
	ctx := context.Background()

	tests := []struct {
		name    string
		slot    int
		image   string
		wantErr error
	}{
		{"empty image", 1, "", ErrEmptyImage},
		{"too large", 1, strings.Repeat("x", 17), ErrImageTooLarge},
		{"unknown slot", 9, "abc", ErrInvalidSlot},
		{"not a camera slot", 2, "abc", ErrInvalidSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(ctx, tt.slot, tt.image)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Save() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	_, err := store.Save(ctx, 9, "abc")
	if !errors.Is(err, slot.ErrSlotNotFound) {
		t.Errorf("Save(unknown) error = %v, want it to wrap slot.ErrSlotNotFound", err)
	}

	if _, err := store.Save(ctx, 1, strings.Repeat("x", 16)); err != nil {
		t.Errorf("Save() at exact limit error = %v", err)
	}
}

func TestStore_DefaultMaxImageSize(t *testing.T) {
	store := setupStore(t, 0)
	if store.MaxImageSize() != DefaultMaxImageSize {
		t.Errorf("MaxImageSize() = %d, want %d", store.MaxImageSize(), DefaultMaxImageSize)
	}
}

type staleLookup struct{ slot slot.Slot }

func (l staleLookup) GetByNumber(context.Context, int) (*slot.Slot, error) {
	s := l.slot
	return &s, nil
}

func TestStore_SaveAfterSlotDeactivated(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	if _, err := store.Save(ctx, 1, "data:image/jpeg;base64,AAAA"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Cascading delete lands between the slot check and the write.
	if _, err := store.db.ExecContext(ctx, `UPDATE slots SET is_active = 0 WHERE slot_number = 1`); err != nil {
		t.Fatalf("deactivating slot: %v", err)
	}
	if err := store.DeleteBySlot(ctx, 1); err != nil {
		t.Fatalf("DeleteBySlot() error = %v", err)
	}

	stale := NewStore(store.db, staleLookup{slot: slot.Slot{SlotNumber: 1, Type: slot.TypeCamera}}, 0)
	if _, err := stale.Save(ctx, 1, "data:image/jpeg;base64,BBBB"); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("Save() error = %v, want ErrInvalidSlot", err)
	}
	if img, err := store.Get(ctx, 1); err != nil || img != nil {
		t.Errorf("Get() = %+v, %v; want no image", img, err)
	}
}

func TestStore_DeleteBySlot(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	if _, err := store.Save(ctx, 1, "frame"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.DeleteBySlot(ctx, 1); err != nil {
		t.Fatalf("DeleteBySlot() error = %v", err)
	}
	if img, _ := store.Get(ctx, 1); img != nil {
		t.Errorf("Get() after delete = %+v, want nil", img)
	}
}

func TestStore_ConcurrentReplaceNeverObservesGap(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	if _, err := store.Save(ctx, 1, "frame-initial"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := store.Save(ctx, 1, fmt.Sprintf("frame-%d-%d", w, i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				img, err := store.Get(ctx, 1)
				if err != nil {
					errs <- err
					continue
				}
				if img == nil {
					errs <- errors.New("reader observed no image during replace")
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
