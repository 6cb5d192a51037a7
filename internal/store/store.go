// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Haku929/Amiro-sub000/internal/domain"
)

var (
	// ErrNotFound is returned by writes that target a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository defines the interface for persisting profiles, situations and
// persona slots, and for running the match ranking procedure.
type Repository interface {
	// GetProfile retrieves a profile by user ID. A missing profile is (nil, nil).
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates a profile or updates its display fields.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// ListSituations returns the situation pool ordered by ID ascending.
	ListSituations(ctx context.Context) ([]domain.Situation, error)

	// InsertSituations appends texts to the pool, skipping duplicates.
	InsertSituations(ctx context.Context, texts []string) (int64, error)

	// ListSlots returns the occupied slots of a user ordered by index.
	ListSlots(ctx context.Context, userID string) ([]*domain.PersonaSlot, error)

	// GetSlot retrieves one slot. A missing slot is (nil, nil).
	GetSlot(ctx context.Context, userID string, index int) (*domain.PersonaSlot, error)

	// InsertSlot stores a new slot. ErrConflict if (user, index) is taken.
	InsertSlot(ctx context.Context, slot *domain.PersonaSlot) error

	// UpdateSlotContent replaces the content of an existing slot and sets
	// updated_at. created_at is left untouched. ErrNotFound if absent.
	UpdateSlotContent(ctx context.Context, userID string, index int, content domain.SlotContent, updatedAt time.Time) error

	// RankCandidates runs the ranking procedure for userID: other users
	// ordered by descending resonance between userID's resonance vectors and
	// their self vectors, windowed by limit and offset.
	RankCandidates(ctx context.Context, userID string, limit, offset int) ([]domain.RankedRow, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Options selects and configures a Repository implementation.
type Options struct {
	Driver string
	Path   string
	URL    string
}

// Open returns the Repository for opts.Driver with its schema initialized.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		s, err := NewSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, opts.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

var (
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)
