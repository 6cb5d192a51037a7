// Package api provides HTTP handlers for the Amiro API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/persona"
	"github.com/Haku929/Amiro-sub000/internal/resonance"
	"github.com/Haku929/Amiro-sub000/internal/situation"
)

// ProfileStore reads and writes display profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, profile *domain.Profile) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SituationPicker returns the daily situations.
type SituationPicker interface {
	Today(ctx context.Context, rawDate string) (*situation.Selection, error)
}

// Replier generates one persona reply.
type Replier interface {
	Reply(ctx context.Context, history domain.Conversation, situation string, target big5.Vector) (string, error)
}

// PersonaExtractor derives a persona from a conversation.
type PersonaExtractor interface {
	Extract(ctx context.Context, conv domain.Conversation) (*persona.Extraction, error)
}

// SlotService manages persona slots.
type SlotService interface {
	List(ctx context.Context, owner string) ([]*domain.PersonaSlot, error)
	Get(ctx context.Context, owner string, index int) (*domain.PersonaSlot, error)
	Create(ctx context.Context, owner string, content domain.SlotContent) (*domain.PersonaSlot, error)
	Overwrite(ctx context.Context, owner string, index int, content domain.SlotContent) (*domain.PersonaSlot, error)
}

// Matcher ranks and compares users.
type Matcher interface {
	Rank(ctx context.Context, userID string, page resonance.Page) ([]domain.MatchCandidate, error)
	Compare(ctx context.Context, selfUserID, otherUserID string) (*domain.MatchCandidate, error)
}

// Services bundles the handler dependencies.
type Services struct {
	Profiles   ProfileStore
	Health     Pinger
	Situations SituationPicker
	Replies    Replier
	Extractor  PersonaExtractor
	Slots      SlotService
	Matches    Matcher
}

// Handler serves the Amiro API.
type Handler struct {
	Services
	completionLimit func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithCompletionLimit wraps the completion-backed endpoints in mw.
func WithCompletionLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.completionLimit = mw }
}

// NewHandler creates a new Handler.
func NewHandler(svc Services, opts ...Option) *Handler {
	h := &Handler{Services: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers every API route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/situations/today", h.GetTodaySituations)

		r.Group(func(r chi.Router) {
			if h.completionLimit != nil {
				r.Use(h.completionLimit)
			}
			r.Post("/chat", h.PostChat)
			r.Post("/analyze", h.PostAnalyze)
		})

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireUser)

			r.Get("/me", h.GetMe)
			r.Patch("/me", h.PatchMe)

			r.Get("/slots", h.ListSlots)
			r.Post("/slots", h.CreateSlot)
			r.Get("/slots/{index}", h.GetSlot)
			r.Put("/slots/{index}", h.OverwriteSlot)

			r.Get("/matches", h.ListMatches)
			r.Get("/matches/{userID}", h.GetMatch)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrorWithMessage writes a JSON error response carrying a machine code and
// a human-readable message.
func ErrorWithMessage(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "message": message})
}
