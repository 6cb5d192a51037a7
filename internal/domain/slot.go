package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Haku929/Amiro-sub000/internal/big5"
)

// Slot indices.
const (
	MinSlotIndex = 1
	MaxSlotIndex = 3
)

// MaxPersonaIconLength bounds the icon in runes.
const MaxPersonaIconLength = 16

// ErrInvalidContent is returned when slot content fails validation.
var ErrInvalidContent = errors.New("invalid slot content")

// ValidSlotIndex reports whether i addresses one of the persona slots.
func ValidSlotIndex(i int) bool {
	return i >= MinSlotIndex && i <= MaxSlotIndex
}

// SlotContent is the replaceable part of a persona slot.
type SlotContent struct {
	SelfVector      big5.Vector `json:"selfVector"`
	ResonanceVector big5.Vector `json:"resonanceVector"`
	PersonaIcon     string      `json:"personaIcon"`
	PersonaSummary  string      `json:"personaSummary"`
}

// Validate checks vectors and the icon.
func (c SlotContent) Validate() error {
	if err := c.SelfVector.Validate(); err != nil {
		return fmt.Errorf("%w: selfVector: %w", ErrInvalidContent, err)
	}
	if err := c.ResonanceVector.Validate(); err != nil {
		return fmt.Errorf("%w: resonanceVector: %w", ErrInvalidContent, err)
	}
	icon := strings.TrimSpace(c.PersonaIcon)
	if icon == "" {
		return fmt.Errorf("%w: personaIcon is required", ErrInvalidContent)
	}
	if utf8.RuneCountInString(icon) > MaxPersonaIconLength {
		return fmt.Errorf("%w: personaIcon exceeds %d characters", ErrInvalidContent, MaxPersonaIconLength)
	}
	return nil
}

// PersonaSlot is one of up to three saved personas of a user.
type PersonaSlot struct {
	UserID    string `json:"userId"`
	SlotIndex int    `json:"slotIndex"`
	SlotContent
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RankedRow is one row returned by the ranking procedure. Score may be a
// [0,1] fraction or already scaled to [0,100].
type RankedRow struct {
	OtherUserID    string
	Score          float64
	SelfSlotIndex  int
	OtherSlotIndex int
}

// MatchCandidate is a ranked match joined with the candidate's profile.
type MatchCandidate struct {
	OtherUserID           string  `json:"otherUserId"`
	DisplayName           string  `json:"displayName"`
	AvatarURL             string  `json:"avatarUrl"`
	ResonanceScore        float64 `json:"resonanceScore"`
	MatchedSlotIndexSelf  int     `json:"matchedSlotIndexSelf"`
	MatchedSlotIndexOther int     `json:"matchedSlotIndexOther"`
}
