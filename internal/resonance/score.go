// Package resonance scores Big Five vectors against each other and ranks
// match candidates.
package resonance

import (
	"math"

	"github.com/Haku929/Amiro-sub000/internal/big5"
)

// DistanceScale converts Euclidean distance into display points. It is a
// cosmetic constant: 100 - 2.5*40 == 0, slightly beyond the true maximum
// distance of sqrt(5).
const DistanceScale = 40

// Score returns the display resonance of two vectors in [0,100]. Identical
// vectors score 100.
func Score(v1, v2 big5.Vector) float64 {
	return math.Max(0, 100-big5.Distance(v1, v2)*DistanceScale)
}

// Normalize brings a score expressed either as a [0,1] fraction or as a
// [0,100] value onto the [0,100] scale.
func Normalize(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	if score <= 1 {
		score *= 100
	}
	return math.Min(100, math.Max(0, score))
}
