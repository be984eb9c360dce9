package slot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// MockRepository is an in-memory Repository.
type MockRepository struct {
	mu       sync.Mutex
	slots    map[int]*Slot
	nextID   int64
	purged   []int
	listErr  error
	listHits int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{slots: make(map[int]*Slot)}
}

func (m *MockRepository) ListActive(_ context.Context) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listHits++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, *s.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) GetActive(_ context.Context, n int) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[n]; ok {
		return s.DeepCopy(), nil
	}
	return nil, ErrSlotNotFound
}

func (m *MockRepository) Create(_ context.Context, s *Slot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[s.SlotNumber]; ok {
		return 0, ErrDuplicateSlot
	}
	m.nextID++
	s.ID = m.nextID
	s.IsActive = true
	m.slots[s.SlotNumber] = s.DeepCopy()
	return s.ID, nil
}

func (m *MockRepository) Update(_ context.Context, s *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[s.SlotNumber]; !ok {
		return ErrSlotNotFound
	}
	m.slots[s.SlotNumber] = s.DeepCopy()
	return nil
}

func (m *MockRepository) SoftDelete(_ context.Context, n int, purge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[n]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, n)
	if purge {
		m.purged = append(m.purged, n)
	}
	return nil
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	reg := NewRegistry(repo, opts)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg, repo
}

func floatPtr(f float64) *float64 { return &f }

func TestNewRegistry_Defaults(t *testing.T) {
	reg := NewRegistry(NewMockRepository(), Options{})
	if reg.MaxSlots() != DefaultMaxSlots {
		t.Errorf("MaxSlots() = %d, want %d", reg.MaxSlots(), DefaultMaxSlots)
	}
	if reg.DeletePolicy() != PolicyCascade {
		t.Errorf("DeletePolicy() = %q, want %q", reg.DeletePolicy(), PolicyCascade)
	}
}

func TestRegistry_Create(t *testing.T) {
	tests := []struct {
		name    string
		slot    Slot
		wantErr error
	}{
		{name: "valid value slot", slot: Slot{SlotNumber: 1, Type: TypeValue, Name: "Temp"}},
		{name: "max number", slot: Slot{SlotNumber: 5, Type: TypeCamera, Name: "Gate"}},
		{name: "zero number", slot: Slot{SlotNumber: 0, Type: TypeValue, Name: "X"}, wantErr: ErrOutOfRange},
		{name: "above max", slot: Slot{SlotNumber: 6, Type: TypeValue, Name: "X"}, wantErr: ErrOutOfRange},
		{name: "unknown type", slot: Slot{SlotNumber: 2, Type: "thermostat", Name: "X"}, wantErr: ErrInvalidType},
		{name: "blank name", slot: Slot{SlotNumber: 2, Type: TypeStatus, Name: "   "}, wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newTestRegistry(t, Options{MaxSlots: 5})
			s := tt.slot
			id, err := reg.Create(context.Background(), &s)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				if reg.Count() != 0 {
					t.Errorf("Count() = %d after failed create, want 0", reg.Count())
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if id == 0 {
				t.Error("Create() returned zero id")
			}
			if s.Icon != DefaultIcon {
				t.Errorf("Icon = %q, want default %q", s.Icon, DefaultIcon)
			}
		})
	}
}

func TestRegistry_Create_Duplicate(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{MaxSlots: 5})
	ctx := context.Background()

	if _, err := reg.Create(ctx, &Slot{SlotNumber: 3, Type: TypeValue, Name: "A"}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := reg.Create(ctx, &Slot{SlotNumber: 3, Type: TypeStatus, Name: "B"})
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("second Create() error = %v, want ErrDuplicateSlot", err)
	}

	got, err := reg.GetByNumber(ctx, 3)
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if got.Name != "A" {
		t.Errorf("Name = %q, want original %q", got.Name, "A")
	}
}

func TestRegistry_GetByNumber_ReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	if _, err := reg.Create(ctx, &Slot{SlotNumber: 1, Type: TypeValue, Name: "Temp", ThresholdMax: floatPtr(30)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := reg.GetByNumber(ctx, 1)
	got.Name = "mutated"
	*got.ThresholdMax = 99

	again, _ := reg.GetByNumber(ctx, 1)
	if again.Name != "Temp" || *again.ThresholdMax != 30 {
		t.Errorf("cache mutated through returned slot: %+v", again)
	}

	if _, err := reg.GetByNumber(ctx, 2); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("GetByNumber(2) error = %v, want ErrSlotNotFound", err)
	}
}

func TestRegistry_GetByNumber_FallsBackBeforeRefresh(t *testing.T) {
	repo := NewMockRepository()
	repo.slots[4] = &Slot{SlotNumber: 4, Type: TypeControl, Name: "Pump", IsActive: true}
	reg := NewRegistry(repo, Options{})

	got, err := reg.GetByNumber(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if got.Name != "Pump" {
		t.Errorf("Name = %q, want Pump", got.Name)
	}
}

func TestRegistry_GetActive_Sorted(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	for _, n := range []int{7, 2, 11, 1} {
		if _, err := reg.Create(ctx, &Slot{SlotNumber: n, Type: TypeValue, Name: fmt.Sprintf("s%d", n)}); err != nil {
			t.Fatalf("Create(%d) error = %v", n, err)
		}
	}

	slots, err := reg.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	var got []int
	for _, s := range slots {
		got = append(got, s.SlotNumber)
	}
	if want := []int{1, 2, 7, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("GetActive() numbers = %v, want %v", got, want)
	}
}

func TestRegistry_Update(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	if _, err := reg.Create(ctx, &Slot{
		SlotNumber: 1, Type: TypeValue, Name: "Temp", Unit: "C",
		ThresholdMin: floatPtr(5), ThresholdMax: floatPtr(30),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := reg.Update(ctx, 1, Update{
		Name:         SetString("Greenhouse"),
		ThresholdMin: ClearFloat(),
		ThresholdMax: SetFloat(0),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Name != "Greenhouse" {
		t.Errorf("Name = %q, want Greenhouse", updated.Name)
	}
	if updated.Unit != "C" {
		t.Errorf("Unit = %q, want untouched C", updated.Unit)
	}
	if updated.ThresholdMin != nil {
		t.Errorf("ThresholdMin = %v, want cleared", *updated.ThresholdMin)
	}
	if updated.ThresholdMax == nil || *updated.ThresholdMax != 0 {
		t.Errorf("ThresholdMax = %v, want 0", updated.ThresholdMax)
	}
	if updated.Type != TypeValue || updated.SlotNumber != 1 {
		t.Errorf("immutable fields changed: %+v", updated)
	}

	cached, _ := reg.GetByNumber(ctx, 1)
	if cached.Name != "Greenhouse" {
		t.Errorf("cache not refreshed after Update: %q", cached.Name)
	}
}

func TestRegistry_Update_Errors(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	if _, err := reg.Update(ctx, 9, Update{Name: SetString("x")}); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrSlotNotFound", err)
	}

	if _, err := reg.Create(ctx, &Slot{SlotNumber: 1, Type: TypeStatus, Name: "Door"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := reg.Update(ctx, 1, Update{Name: OptionalString{Set: true, Null: true}}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Update(null name) error = %v, want ErrInvalidName", err)
	}
}

func TestRegistry_SoftDelete(t *testing.T) {
	tests := []struct {
		policy     DeletePolicy
		wantPurged bool
	}{
		{PolicyCascade, true},
		{PolicyRetainHistory, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			reg, repo := newTestRegistry(t, Options{DeletePolicy: tt.policy})
			ctx := context.Background()

			if _, err := reg.Create(ctx, &Slot{SlotNumber: 2, Type: TypeValue, Name: "Old"}); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := reg.SoftDelete(ctx, 2); err != nil {
				t.Fatalf("SoftDelete() error = %v", err)
			}
			if _, err := reg.GetByNumber(ctx, 2); !errors.Is(err, ErrSlotNotFound) {
				t.Errorf("GetByNumber after delete error = %v, want ErrSlotNotFound", err)
			}
			if got := len(repo.purged) == 1; got != tt.wantPurged {
				t.Errorf("purged = %v, want %v", repo.purged, tt.wantPurged)
			}

			// Number is free again.
			if _, err := reg.Create(ctx, &Slot{SlotNumber: 2, Type: TypeCamera, Name: "New"}); err != nil {
				t.Fatalf("re-Create() error = %v", err)
			}
			got, _ := reg.GetByNumber(ctx, 2)
			if got.Type != TypeCamera {
				t.Errorf("Type = %q, want camera", got.Type)
			}

			if err := reg.SoftDelete(ctx, 17); !errors.Is(err, ErrSlotNotFound) {
				t.Errorf("SoftDelete(missing) error = %v, want ErrSlotNotFound", err)
			}
		})
	}
}

func TestRegistry_ListAvailableNumbers(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{MaxSlots: 5})
	ctx := context.Background()

	for _, n := range []int{1, 3} {
		if _, err := reg.Create(ctx, &Slot{SlotNumber: n, Type: TypeValue, Name: "s"}); err != nil {
			t.Fatalf("Create(%d) error = %v", n, err)
		}
	}

	got, err := reg.ListAvailableNumbers(ctx)
	if err != nil {
		t.Fatalf("ListAvailableNumbers() error = %v", err)
	}
	if want := []int{2, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListAvailableNumbers() = %v, want %v", got, want)
	}
}

func TestRegistry_ListAvailableNumbers_AfterLimitLowered(t *testing.T) {
	reg, repo := newTestRegistry(t, Options{MaxSlots: 20})
	ctx := context.Background()
	for _, n := range []int{1, 2, 3, 4, 6, 9, 12, 18} {
		if _, err := reg.Create(ctx, &Slot{SlotNumber: n, Type: TypeValue, Name: "s"}); err != nil {
			t.Fatalf("Create(%d) error = %v", n, err)
		}
	}

	lowered := NewRegistry(repo, Options{MaxSlots: 5})
	if err := lowered.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if lowered.Count() != 8 {
		t.Errorf("Count() = %d, want 8", lowered.Count())
	}

	got, err := lowered.ListAvailableNumbers(ctx)
	if err != nil {
		t.Fatalf("ListAvailableNumbers() error = %v", err)
	}
	if want := []int{5}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListAvailableNumbers() = %v, want %v", got, want)
	}

	if _, err := lowered.Create(ctx, &Slot{SlotNumber: 5, Type: TypeValue, Name: "s"}); err != nil {
		t.Fatalf("Create(5) error = %v", err)
	}
	got, err = lowered.ListAvailableNumbers(ctx)
	if err != nil {
		t.Fatalf("ListAvailableNumbers() error = %v", err)
	}
	if len(got) != 0 || got == nil {
		t.Errorf("ListAvailableNumbers() = %#v, want empty non-nil", got)
	}
}

func TestRegistry_CountByType(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	for n, typ := range map[int]Type{1: TypeCamera, 2: TypeCamera, 3: TypeControl, 4: TypeValue} {
		if _, err := reg.Create(ctx, &Slot{SlotNumber: n, Type: typ, Name: "s"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if got := reg.CountByType(TypeCamera); got != 2 {
		t.Errorf("CountByType(camera) = %d, want 2", got)
	}
	if got := reg.CountByType(TypeControl); got != 1 {
		t.Errorf("CountByType(control) = %d, want 1", got)
	}
	if got := reg.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
}

func TestRegistry_RefreshCache_Error(t *testing.T) {
	repo := NewMockRepository()
	repo.listErr = errors.New("disk gone")
	reg := NewRegistry(repo, Options{})

	if err := reg.RefreshCache(context.Background()); err == nil {
		t.Fatal("RefreshCache() expected error")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{MaxSlots: 20})
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 1; n <= 20; n++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			_, _ = reg.Create(ctx, &Slot{SlotNumber: n, Type: TypeValue, Name: "s"}) //nolint:errcheck // racing creates
		}(n)
		go func(n int) {
			defer wg.Done()
			_, _ = reg.GetByNumber(ctx, n) //nolint:errcheck // may not exist yet
		}(n)
		go func() {
			defer wg.Done()
			_, _ = reg.ListAvailableNumbers(ctx) //nolint:errcheck // read only
		}()
	}
	wg.Wait()

	if reg.Count() != 20 {
		t.Errorf("Count() = %d, want 20", reg.Count())
	}
}

func TestRegistry_ConcurrentDuplicateCreate(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Create(ctx, &Slot{SlotNumber: 1, Type: TypeValue, Name: "s"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrDuplicateSlot) {
				t.Errorf("Create() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful creates = %d, want exactly 1", successes)
	}
}
