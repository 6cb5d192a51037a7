package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/resonance"
)

// ListMatches returns one page of ranked match candidates.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	q := r.URL.Query()
	page := resonance.ParsePage(q.Get("limit"), q.Get("offset"))

	matches, err := h.Matches.Rank(r.Context(), userID, page)
	if err != nil {
		slog.Error("Ranking failed", "user_id", userID, "limit", page.Limit, "offset", page.Offset, "error", err)
		ErrorWithMessage(w, http.StatusServiceUnavailable, "ranking_unavailable", "matches are unavailable, try again")
		return
	}
	if matches == nil {
		matches = []domain.MatchCandidate{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// GetMatch returns the pairwise display score between the caller and userID.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	otherID := chi.URLParam(r, "userID")
	if otherID == "" || otherID == userID {
		ErrorWithMessage(w, http.StatusBadRequest, "invalid_user", "choose another user")
		return
	}

	m, err := h.Matches.Compare(r.Context(), userID, otherID)
	if err != nil {
		if errors.Is(err, resonance.ErrNoSlots) {
			ErrorWithMessage(w, http.StatusNotFound, "not_found", "no personas to compare")
			return
		}
		slog.Error("Match comparison failed", "user_id", userID, "other_user_id", otherID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	JSON(w, http.StatusOK, m)
}
