// Package risk holds the score-to-verdict bucketing shared by every detector
// in the tampering pipeline. All scores live on a 0-100 scale and map to one
// of three tiers through the fixed thresholds 40 and 65.
package risk

import (
	"fmt"
	"math"
)

// Bucket thresholds. A score at or above ThresholdHigh is high risk, at or
// above ThresholdMedium is medium risk, anything below is low risk.
const (
	ThresholdMedium = 40.0
	ThresholdHigh   = 65.0
)

// Verdict renders the tier for score as "HIGH <label> RISK",
// "MEDIUM <label> RISK" or "LOW <label> RISK".
func Verdict(score float64, label string) string {
	switch {
	case score >= ThresholdHigh:
		return fmt.Sprintf("HIGH %s RISK", label)
	case score >= ThresholdMedium:
		return fmt.Sprintf("MEDIUM %s RISK", label)
	default:
		return fmt.Sprintf("LOW %s RISK", label)
	}
}

// Clamp100 caps score at 100. Detector scoring is additive, so only the upper
// bound needs enforcement.
func Clamp100(score float64) float64 {
	if score > 100 {
		return 100
	}
	return score
}

// Round2 rounds score to two decimal places for reporting.
func Round2(score float64) float64 {
	return math.Round(score*100) / 100
}
