package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/identity"
	"github.com/Haku929/Amiro-sub000/internal/slot"
)

// ListSlots returns the caller's occupied slots.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slots, err := h.Slots.List(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list slots", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"slots": slots})
}

// GetSlot returns one of the caller's slots.
func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	index, verr := parseSlotIndex(chi.URLParam(r, "index"))
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	s, err := h.Slots.Get(r.Context(), userID, index)
	if err != nil {
		h.slotError(w, userID, index, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// CreateSlot saves a persona into the caller's lowest empty slot.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	content, verr := decodeSlotContent(w, r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	s, err := h.Slots.Create(r.Context(), userID, *content)
	if err != nil {
		h.slotError(w, userID, 0, err)
		return
	}
	slog.Info("Persona slot created", "user_id", userID, "slot_index", s.SlotIndex)
	JSON(w, http.StatusCreated, s)
}

// OverwriteSlot replaces the content of an existing slot.
func (h *Handler) OverwriteSlot(w http.ResponseWriter, r *http.Request) {
	index, verr := parseSlotIndex(chi.URLParam(r, "index"))
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	content, verr := decodeSlotContent(w, r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	s, err := h.Slots.Overwrite(r.Context(), userID, index, *content)
	if err != nil {
		h.slotError(w, userID, index, err)
		return
	}
	slog.Info("Persona slot overwritten", "user_id", userID, "slot_index", index)
	JSON(w, http.StatusOK, s)
}

func (h *Handler) slotError(w http.ResponseWriter, userID string, index int, err error) {
	switch {
	case errors.Is(err, slot.ErrNoSlotAvailable):
		ErrorWithMessage(w, http.StatusConflict, "no_slot_available", "all persona slots are in use, overwrite one instead")
	case errors.Is(err, slot.ErrInvalidIndex):
		ErrorWithMessage(w, http.StatusBadRequest, codeInvalidIndex, err.Error())
	case errors.Is(err, slot.ErrNotFound):
		ErrorWithMessage(w, http.StatusNotFound, "not_found", "slot is empty")
	case errors.Is(err, domain.ErrInvalidContent):
		ErrorWithMessage(w, http.StatusBadRequest, codeInvalidBody, err.Error())
	default:
		slog.Error("Slot operation failed", "user_id", userID, "slot_index", index, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
	}
}
