package slot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Options configures a Registry.
type Options struct {
	// MaxSlots is the highest valid slot number. Defaults to DefaultMaxSlots.
	MaxSlots int

	// DeletePolicy decides what SoftDelete does with dependent data.
	// Defaults to PolicyCascade.
	DeletePolicy DeletePolicy
}

// Registry is the authoritative lookup of slot configuration. It caches
// active slots in memory and is safe for concurrent use by the HTTP API and
// the MQTT listener.
//
// The database is the source of truth for uniqueness: two concurrent creates
// for the same number race in SQLite, not in the cache, and the loser gets
// ErrDuplicateSlot.
type Registry struct {
	repo   Repository
	opts   Options
	logger Logger

	// writeMu serialises read-modify-write mutations so concurrent partial
	// updates of one slot do not drop each other's fields.
	writeMu sync.Mutex

	cacheMu sync.RWMutex
	cache   map[int]*Slot // active slots by number
	loaded  bool
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository, opts Options) *Registry {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = DefaultMaxSlots
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = PolicyCascade
	}
	return &Registry{
		repo:   repo,
		opts:   opts,
		logger: noopLogger{},
		cache:  make(map[int]*Slot),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// MaxSlots returns the configured slot number upper bound.
func (r *Registry) MaxSlots() int {
	return r.opts.MaxSlots
}

// DeletePolicy returns the configured delete policy.
func (r *Registry) DeletePolicy() DeletePolicy {
	return r.opts.DeletePolicy
}

// RefreshCache reloads all active slots from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	slots, err := r.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading slots: %w", err)
	}

	cache := make(map[int]*Slot, len(slots))
	for i := range slots {
		cache[slots[i].SlotNumber] = slots[i].DeepCopy()
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.loaded = true
	r.cacheMu.Unlock()

	r.logger.Info("slot cache refreshed", "count", len(slots))
	return nil
}

// GetActive returns all active slots sorted by number. The returned slots
// are copies.
func (r *Registry) GetActive(ctx context.Context) ([]Slot, error) {
	r.cacheMu.RLock()
	if r.loaded {
		slots := make([]Slot, 0, len(r.cache))
		for _, s := range r.cache {
			slots = append(slots, *s.DeepCopy())
		}
		r.cacheMu.RUnlock()
		sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNumber < slots[j].SlotNumber })
		return slots, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.ListActive(ctx)
}

// GetByNumber returns the active slot with number n, or ErrSlotNotFound.
func (r *Registry) GetByNumber(ctx context.Context, n int) (*Slot, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[n]
	loaded := r.loaded
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	if loaded {
		return nil, ErrSlotNotFound
	}

	s, err := r.repo.GetActive(ctx, n)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create validates and persists a new slot and returns its row ID.
func (r *Registry) Create(ctx context.Context, s *Slot) (int64, error) {
	s.Name = strings.TrimSpace(s.Name)
	if err := r.validate(s); err != nil {
		return 0, err
	}
	if s.Icon == "" {
		s.Icon = DefaultIcon
	}

	id, err := r.repo.Create(ctx, s)
	if err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return 0, fmt.Errorf("slot %d: %w", s.SlotNumber, ErrDuplicateSlot)
		}
		return 0, err
	}

	r.cacheMu.Lock()
	r.cache[s.SlotNumber] = s.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("slot created", "slot", s.SlotNumber, "type", s.Type, "name", s.Name)
	return id, nil
}

// Update applies a partial update to active slot n and returns the result.
func (r *Registry) Update(ctx context.Context, n int, u Update) (*Slot, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.GetByNumber(ctx, n)
	if err != nil {
		return nil, err
	}

	u.apply(existing)
	existing.Name = strings.TrimSpace(existing.Name)
	if existing.Name == "" {
		return nil, ErrInvalidName
	}

	if err := r.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			r.evict(n)
		}
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[n] = existing.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("slot updated", "slot", n)
	return existing, nil
}

// SoftDelete deactivates slot n according to the configured DeletePolicy.
func (r *Registry) SoftDelete(ctx context.Context, n int) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	purge := r.opts.DeletePolicy == PolicyCascade
	if err := r.repo.SoftDelete(ctx, n, purge); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			r.evict(n)
		}
		return err
	}
	r.evict(n)

	r.logger.Info("slot deleted", "slot", n, "policy", r.opts.DeletePolicy)
	return nil
}

// ListAvailableNumbers returns the numbers in [1, MaxSlots] not held by an
// active slot, ascending.
func (r *Registry) ListAvailableNumbers(ctx context.Context) ([]int, error) {
	active, err := r.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	// Slots above MaxSlots can exist after the limit is lowered; they hold
	// no number in range.
	used := make(map[int]bool, len(active))
	for _, s := range active {
		if s.SlotNumber <= r.opts.MaxSlots {
			used[s.SlotNumber] = true
		}
	}

	available := make([]int, 0, r.opts.MaxSlots-len(used))
	for n := 1; n <= r.opts.MaxSlots; n++ {
		if !used[n] {
			available = append(available, n)
		}
	}
	return available, nil
}

// Count returns the number of cached active slots.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// CountByType returns how many cached active slots have type t.
func (r *Registry) CountByType(t Type) int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	n := 0
	for _, s := range r.cache {
		if s.Type == t {
			n++
		}
	}
	return n
}

func (r *Registry) validate(s *Slot) error {
	if s.SlotNumber < 1 || s.SlotNumber > r.opts.MaxSlots {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrOutOfRange, s.SlotNumber, r.opts.MaxSlots)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, s.Type)
	}
	if s.Name == "" {
		return ErrInvalidName
	}
	return nil
}

func (r *Registry) evict(n int) {
	r.cacheMu.Lock()
	delete(r.cache, n)
	r.cacheMu.Unlock()
}
