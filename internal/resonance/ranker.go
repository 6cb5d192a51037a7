package resonance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Haku929/Amiro-sub000/internal/domain"
)

// DefaultJoinWorkers bounds concurrent profile lookups per request.
const DefaultJoinWorkers = 8

var (
	// ErrRankingUnavailable wraps failures of the ranking procedure.
	ErrRankingUnavailable = errors.New("ranking unavailable")
	// ErrNoSlots is returned by Compare when either side has no saved persona.
	ErrNoSlots = errors.New("no persona slots to compare")
)

// RankingStore is the row-store surface the Ranker consumes.
type RankingStore interface {
	// RankCandidates returns other users sorted by descending resonance
	// with userID, already windowed by limit and offset.
	RankCandidates(ctx context.Context, userID string, limit, offset int) ([]domain.RankedRow, error)
	ListSlots(ctx context.Context, userID string) ([]*domain.PersonaSlot, error)
}

// ProfileLookup resolves display profiles. A missing profile is (nil, nil).
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Ranker produces the match list.
type Ranker struct {
	store       RankingStore
	profiles    ProfileLookup
	joinWorkers int
	logger      *slog.Logger
}

// NewRanker creates a Ranker.
func NewRanker(store RankingStore, profiles ProfileLookup, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{
		store:       store,
		profiles:    profiles,
		joinWorkers: DefaultJoinWorkers,
		logger:      logger,
	}
}

// Rank returns one page of match candidates for userID in the order given
// by the ranking procedure. Candidates whose profile cannot be loaded keep
// their place with empty display fields.
func (r *Ranker) Rank(ctx context.Context, userID string, page Page) ([]domain.MatchCandidate, error) {
	rows, err := r.store.RankCandidates(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRankingUnavailable, err)
	}

	out := make([]domain.MatchCandidate, len(rows))
	for i, row := range rows {
		out[i] = domain.MatchCandidate{
			OtherUserID:           row.OtherUserID,
			ResonanceScore:        Normalize(row.Score),
			MatchedSlotIndexSelf:  row.SelfSlotIndex,
			MatchedSlotIndexOther: row.OtherSlotIndex,
		}
	}

	var g errgroup.Group
	g.SetLimit(r.joinWorkers)
	for i := range out {
		g.Go(func() error {
			r.joinProfile(ctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

// Compare computes the display score between selfUserID and otherUserID:
// the best Score of any of self's resonance vectors against any of the
// other user's self vectors.
func (r *Ranker) Compare(ctx context.Context, selfUserID, otherUserID string) (*domain.MatchCandidate, error) {
	mine, err := r.store.ListSlots(ctx, selfUserID)
	if err != nil {
		return nil, fmt.Errorf("list own slots: %w", err)
	}
	theirs, err := r.store.ListSlots(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("list candidate slots: %w", err)
	}
	if len(mine) == 0 || len(theirs) == 0 {
		return nil, ErrNoSlots
	}

	best := &domain.MatchCandidate{OtherUserID: otherUserID, ResonanceScore: -1}
	for _, m := range mine {
		for _, o := range theirs {
			s := Score(m.ResonanceVector, o.SelfVector)
			if s > best.ResonanceScore {
				best.ResonanceScore = s
				best.MatchedSlotIndexSelf = m.SlotIndex
				best.MatchedSlotIndexOther = o.SlotIndex
			}
		}
	}

	r.joinProfile(ctx, best)
	return best, nil
}

func (r *Ranker) joinProfile(ctx context.Context, c *domain.MatchCandidate) {
	p, err := r.profiles.GetProfile(ctx, c.OtherUserID)
	if err != nil {
		r.logger.Warn("profile lookup failed during match join", "user_id", c.OtherUserID, "error", err)
		return
	}
	if p == nil {
		return
	}
	c.DisplayName = p.DisplayName
	c.AvatarURL = p.AvatarURL
}
