package search

import (
	"math"
	"time"
)

// applyTemporalDecay down-weights score by an exponential half-life based
// on createdAt's age relative to now: score * 0.5^(age_days/half_life_days).
func applyTemporalDecay(score float64, createdAt, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return score
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return score * math.Pow(0.5, ageDays/halfLifeDays)
}
