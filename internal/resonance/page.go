package resonance

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Paging bounds for the match list.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxOffset matches the INTEGER parameter of the ranking procedure.
	MaxOffset = math.MaxInt32
)

// Page is a clamped window into the ranked list.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ParsePage clamps raw query values. A limit that is not a non-negative
// integer becomes DefaultLimit and is capped at MaxLimit, including digit
// strings too large for int. An offset that is not a non-negative integer
// becomes 0 and is capped at MaxOffset.
func ParsePage(limitRaw, offsetRaw string) Page {
	limit, err := parseNonNegative(limitRaw)
	switch {
	case errors.Is(err, strconv.ErrRange):
		limit = MaxLimit
	case err != nil:
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	offset, err := parseNonNegative(offsetRaw)
	if err != nil {
		offset = 0
	}
	offset = min(offset, MaxOffset)

	return Page{Limit: limit, Offset: offset}
}

var errNotNonNegative = errors.New("not a non-negative integer")

// parseNonNegative parses a base-10 non-negative int. Positive values that
// overflow int report strconv.ErrRange.
func parseNonNegative(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "-") {
		return 0, errNotNonNegative
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}
