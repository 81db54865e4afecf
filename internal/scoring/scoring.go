// Package scoring holds the pure DORA computations: tier classification,
// composite scoring, and the daily metric reducer. No I/O, no state.
package scoring

import (
	"math"

	"github.com/dorapulse/dora-pulse/internal/domain"
)

type thresholds struct {
	elite  float64
	high   float64
	medium float64
}

// Industry-standard tier cutoffs. Deployment frequency is per week and
// higher is better; the other three are lower-is-better.
var tierThresholds = map[string]thresholds{
	domain.MetricDeploymentFrequency: {elite: 7, high: 1, medium: 0.25},
	domain.MetricLeadTime:            {elite: 24, high: 168, medium: 720},
	domain.MetricChangeFailureRate:   {elite: 5, high: 15, medium: 30},
	domain.MetricMTTR:                {elite: 60, high: 1440, medium: 10080},
}

var tierScores = map[string]float64{
	domain.TierElite:  100,
	domain.TierHigh:   75,
	domain.TierMedium: 50,
	domain.TierLow:    25,
}

// TierFor classifies a metric value into a tier. Unknown metrics are Low.
func TierFor(metric string, value float64) string {
	t, ok := tierThresholds[metric]
	if !ok { return domain.TierLow }
	if metric == domain.MetricDeploymentFrequency {
		switch {
		case value >= t.elite:
			return domain.TierElite
		case value >= t.high:
			return domain.TierHigh
		case value >= t.medium:
			return domain.TierMedium
		default:
			return domain.TierLow
		}
	}
	switch {
	case value <= t.elite:
		return domain.TierElite
	case value <= t.high:
		return domain.TierHigh
	case value <= t.medium:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// TierScore maps a tier label to its numeric score. Unknown tiers score as Low.
func TierScore(tier string) float64 {
	if s, ok := tierScores[tier]; ok { return s }
	return tierScores[domain.TierLow]
}

// OverallScore is the unweighted mean of the four per-metric tier scores.
func OverallScore(freq, lead, fail, mttr string) float64 {
	return (TierScore(freq) + TierScore(lead) + TierScore(fail) + TierScore(mttr)) / 4
}

// OverallTier bands a composite score with the same cutoffs used for
// per-metric scores.
func OverallTier(score float64) string {
	switch {
	case score >= 75:
		return domain.TierElite
	case score >= 50:
		return domain.TierHigh
	case score >= 25:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// RoundScore rounds a composite score to the nearest integer, halves away
// from zero.
func RoundScore(score float64) int {
	return int(math.Round(score))
}
