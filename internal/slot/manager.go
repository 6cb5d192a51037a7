// Package slot manages the three persona slots each user can fill.
package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/store"
)

var (
	// ErrNoSlotAvailable is returned by Create when all slots are occupied.
	ErrNoSlotAvailable = errors.New("no slot available")
	// ErrInvalidIndex is returned for slot indices outside 1..3.
	ErrInvalidIndex = errors.New("invalid slot index")
	// ErrNotFound is returned when the addressed slot is empty.
	ErrNotFound = errors.New("slot not found")
	// ErrStore wraps unexpected store failures.
	ErrStore = errors.New("slot store failure")
)

// Operation labels reported to the Observer.
const (
	OpCreate    = "create"
	OpOverwrite = "overwrite"
)

// Store is the persistence surface the Manager needs.
type Store interface {
	ListSlots(ctx context.Context, userID string) ([]*domain.PersonaSlot, error)
	GetSlot(ctx context.Context, userID string, index int) (*domain.PersonaSlot, error)
	InsertSlot(ctx context.Context, slot *domain.PersonaSlot) error
	UpdateSlotContent(ctx context.Context, userID string, index int, content domain.SlotContent, updatedAt time.Time) error
}

// Observer receives the outcome of every write.
type Observer interface {
	ObserveSlotOperation(operation string, err error)
}

// Manager enforces slot allocation rules on top of a Store.
type Manager struct {
	store    Store
	now      func() time.Time
	observer Observer
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithObserver reports write outcomes to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns the occupied slots of owner ordered by index.
func (m *Manager) List(ctx context.Context, owner string) ([]*domain.PersonaSlot, error) {
	slots, err := m.store.ListSlots(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStore, err)
	}
	if slots == nil {
		slots = []*domain.PersonaSlot{}
	}
	return slots, nil
}

// Get returns one slot of owner.
func (m *Manager) Get(ctx context.Context, owner string, index int) (*domain.PersonaSlot, error) {
	if !domain.ValidSlotIndex(index) {
		return nil, ErrInvalidIndex
	}
	slot, err := m.store.GetSlot(ctx, owner, index)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", ErrStore, err)
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	return slot, nil
}

// Create stores content in the lowest empty slot of owner. A concurrent
// insert that wins the same index surfaces as ErrNoSlotAvailable.
func (m *Manager) Create(ctx context.Context, owner string, content domain.SlotContent) (slot *domain.PersonaSlot, err error) {
	defer func() { m.observe(OpCreate, err) }()

	if err := content.Validate(); err != nil {
		return nil, err
	}

	existing, err := m.store.ListSlots(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStore, err)
	}
	index, ok := firstEmpty(existing)
	if !ok {
		return nil, ErrNoSlotAvailable
	}

	now := m.stamp()
	slot = &domain.PersonaSlot{
		UserID:      owner,
		SlotIndex:   index,
		SlotContent: content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.InsertSlot(ctx, slot); err != nil {
		if errors.Is(err, store.ErrConflict) {
			m.logger.Info("slot taken by concurrent create", "user_id", owner, "slot_index", index)
			return nil, ErrNoSlotAvailable
		}
		return nil, fmt.Errorf("%w: insert: %w", ErrStore, err)
	}
	return slot, nil
}

// Overwrite replaces the content of an existing slot. createdAt is kept.
func (m *Manager) Overwrite(ctx context.Context, owner string, index int, content domain.SlotContent) (slot *domain.PersonaSlot, err error) {
	defer func() { m.observe(OpOverwrite, err) }()

	if !domain.ValidSlotIndex(index) {
		return nil, ErrInvalidIndex
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.UpdateSlotContent(ctx, owner, index, content, m.stamp()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: update: %w", ErrStore, err)
	}

	slot, err = m.store.GetSlot(ctx, owner, index)
	if err != nil {
		return nil, fmt.Errorf("%w: reload: %w", ErrStore, err)
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	return slot, nil
}

// stamp returns the current time at the precision every store keeps, so a
// slot returned by Create equals the same slot read back later.
func (m *Manager) stamp() time.Time {
	return m.now().UTC().Truncate(time.Second)
}

func (m *Manager) observe(op string, err error) {
	if m.observer != nil {
		m.observer.ObserveSlotOperation(op, err)
	}
}

func firstEmpty(slots []*domain.PersonaSlot) (int, bool) {
	var used [domain.MaxSlotIndex + 1]bool
	for _, s := range slots {
		if domain.ValidSlotIndex(s.SlotIndex) {
			used[s.SlotIndex] = true
		}
	}
	for i := domain.MinSlotIndex; i <= domain.MaxSlotIndex; i++ {
		if !used[i] {
			return i, true
		}
	}
	return 0, false
}
