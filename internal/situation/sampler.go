// Package situation selects the daily conversation situations.
package situation

import (
	"errors"
	"time"
)

// DateLayout is the only accepted date key format.
const DateLayout = "2006-01-02"

// PickCount is the number of situations offered per day.
const PickCount = 3

// ErrInsufficientPool is returned when fewer than PickCount candidates exist.
var ErrInsufficientPool = errors.New("situation pool has fewer than 3 entries")

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	// maxDraws bounds the generator; past it the remaining picks are the
	// lowest unused indices.
	maxDraws = 1024
)

// DateKey returns raw when it is a valid YYYY-MM-DD date, otherwise the UTC
// date of now in that format.
func DateKey(raw string, now time.Time) string {
	if raw != "" {
		if _, err := time.Parse(DateLayout, raw); err == nil {
			return raw
		}
	}
	return now.UTC().Format(DateLayout)
}

// HashDate folds a date key into a 32-bit seed. The fold is order
// sensitive; the final multiplicative mix spreads adjacent dates apart.
func HashDate(dateKey string) uint32 {
	var h uint32
	for i := 0; i < len(dateKey); i++ {
		h = h*31 + uint32(dateKey[i])
	}
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// PickThree returns three distinct indices into [0, n), determined solely by
// dateKey and n.
func PickThree(dateKey string, n int) ([PickCount]int, error) {
	var out [PickCount]int
	if n < PickCount {
		return out, ErrInsufficientPool
	}

	seen := make(map[int]struct{}, PickCount)
	picked := 0
	seed := HashDate(dateKey)
	for draw := 0; draw < maxDraws && picked < PickCount; draw++ {
		seed = seed*lcgMultiplier + lcgIncrement
		idx := reduce(seed, n)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out[picked] = idx
		picked++
	}

	for idx := 0; picked < PickCount; idx++ {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out[picked] = idx
		picked++
	}
	return out, nil
}

// reduce maps a generator state onto [0, n). Low LCG bits have short
// periods, so small pools draw from the high half.
func reduce(seed uint32, n int) int {
	if n <= 1<<16 {
		return int((seed >> 16) % uint32(n))
	}
	return int(uint64(seed) % uint64(n))
}
