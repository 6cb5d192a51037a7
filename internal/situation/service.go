package situation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Haku929/Amiro-sub000/internal/domain"
)

// ErrStoreUnavailable is returned when the pool cannot be read.
var ErrStoreUnavailable = errors.New("situation store unavailable")

// Pool supplies the candidate situations in stable ascending ID order.
type Pool interface {
	ListSituations(ctx context.Context) ([]domain.Situation, error)
}

// Selection is the set of situations offered for one date.
type Selection struct {
	Date       string   `json:"date"`
	Situations []string `json:"situations"`
}

// Service resolves the daily selection against a Pool.
type Service struct {
	pool Pool
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to derive the default date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service reading from pool.
func NewService(pool Pool, opts ...Option) *Service {
	s := &Service{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the selection for rawDate, or for the current UTC date when
// rawDate is empty or not a valid YYYY-MM-DD value.
func (s *Service) Today(ctx context.Context, rawDate string) (*Selection, error) {
	dateKey := DateKey(rawDate, s.now())

	pool, err := s.pool.ListSituations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	indices, err := PickThree(dateKey, len(pool))
	if err != nil {
		slog.Warn("situation pool too small", "date", dateKey, "pool_size", len(pool))
		return nil, err
	}

	sel := &Selection{Date: dateKey, Situations: make([]string, 0, PickCount)}
	for _, idx := range indices {
		sel.Situations = append(sel.Situations, pool[idx].Text)
	}
	return sel, nil
}
