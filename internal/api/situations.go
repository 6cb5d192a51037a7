package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Haku929/Amiro-sub000/internal/situation"
)

// GetTodaySituations returns the three situations for ?date (UTC today by default).
func (h *Handler) GetTodaySituations(w http.ResponseWriter, r *http.Request) {
	sel, err := h.Situations.Today(r.Context(), r.URL.Query().Get("date"))
	switch {
	case err == nil:
		JSON(w, http.StatusOK, sel)
	case errors.Is(err, situation.ErrInsufficientPool):
		slog.Error("Situation pool too small", "error", err)
		ErrorWithMessage(w, http.StatusServiceUnavailable, "insufficient_pool", "not enough situations are configured")
	default:
		slog.Error("Failed to load situations", "error", err)
		ErrorWithMessage(w, http.StatusServiceUnavailable, "store_unavailable", "situations are unavailable, try again")
	}
}
