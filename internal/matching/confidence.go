package matching

import "math"

// Confidence bounds. 100 is reserved and never reported.
const (
	MinConfidence = 1
	MaxConfidence = 99
)

// ToPercent maps a raw similarity to a confidence percentage in [MinConfidence, MaxConfidence]:
// round(similarity*100), clamped. NaN maps to MinConfidence.
func ToPercent(similarity float64) int {
	if math.IsNaN(similarity) {
		return MinConfidence
	}
	pct := math.Round(similarity * 100)
	if pct < MinConfidence {
		return MinConfidence
	}
	if pct > MaxConfidence {
		return MaxConfidence
	}
	return int(pct)
}
