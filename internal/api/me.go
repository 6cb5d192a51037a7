package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Haku929/Amiro-sub000/internal/identity"
)

// GetMe returns the caller's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	p, err := h.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if p == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	JSON(w, http.StatusOK, p)
}

// PatchMe updates the caller's display name and avatar.
func (h *Handler) PatchMe(w http.ResponseWriter, r *http.Request) {
	patch, verr := decodeProfilePatch(w, r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	p, err := h.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if p == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
	p.UpdatedAt = time.Now()

	if err := h.Profiles.UpsertProfile(r.Context(), p); err != nil {
		slog.Error("Failed to update profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	JSON(w, http.StatusOK, p)
}
