package scoring

import (
	"testing"

	"github.com/dorapulse/dora-pulse/internal/domain"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		value  float64
		want   string
	}{
		{"freq elite boundary", domain.MetricDeploymentFrequency, 7, domain.TierElite},
		{"freq above elite", domain.MetricDeploymentFrequency, 10, domain.TierElite},
		{"freq high boundary", domain.MetricDeploymentFrequency, 1, domain.TierHigh},
		{"freq medium boundary", domain.MetricDeploymentFrequency, 0.25, domain.TierMedium},
		{"freq low", domain.MetricDeploymentFrequency, 0.1, domain.TierLow},
		{"freq zero", domain.MetricDeploymentFrequency, 0, domain.TierLow},

		{"lead elite boundary", domain.MetricLeadTime, 24, domain.TierElite},
		{"lead high", domain.MetricLeadTime, 100, domain.TierHigh},
		{"lead medium boundary", domain.MetricLeadTime, 720, domain.TierMedium},
		{"lead low", domain.MetricLeadTime, 721, domain.TierLow},

		{"fail zero is elite", domain.MetricChangeFailureRate, 0, domain.TierElite},
		{"fail elite boundary", domain.MetricChangeFailureRate, 5, domain.TierElite},
		{"fail high", domain.MetricChangeFailureRate, 10, domain.TierHigh},
		{"fail medium", domain.MetricChangeFailureRate, 30, domain.TierMedium},
		{"fail low", domain.MetricChangeFailureRate, 50, domain.TierLow},

		{"mttr elite boundary", domain.MetricMTTR, 60, domain.TierElite},
		{"mttr high", domain.MetricMTTR, 120, domain.TierHigh},
		{"mttr medium", domain.MetricMTTR, 10080, domain.TierMedium},
		{"mttr low", domain.MetricMTTR, 20000, domain.TierLow},

		{"unknown metric is low", "velocity", 100, domain.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierFor(tt.metric, tt.value); got != tt.want {
				t.Errorf("TierFor(%s, %v) = %s, want %s", tt.metric, tt.value, got, tt.want)
			}
		})
	}
}

// Tier assignment must be monotonic: better values never get a worse tier.
func TestTierForMonotonic(t *testing.T) {
	rank := map[string]int{domain.TierLow: 0, domain.TierMedium: 1, domain.TierHigh: 2, domain.TierElite: 3}

	freqValues := []float64{0, 0.1, 0.25, 0.5, 1, 3, 7, 20}
	for i := 1; i < len(freqValues); i++ {
		lo := TierFor(domain.MetricDeploymentFrequency, freqValues[i-1])
		hi := TierFor(domain.MetricDeploymentFrequency, freqValues[i])
		if rank[hi] < rank[lo] {
			t.Errorf("frequency tier not monotonic: %v→%s but %v→%s", freqValues[i-1], lo, freqValues[i], hi)
		}
	}

	lowerIsBetter := []string{domain.MetricLeadTime, domain.MetricChangeFailureRate, domain.MetricMTTR}
	values := []float64{0, 1, 5, 15, 24, 30, 60, 168, 720, 1440, 10080, 99999}
	for _, metric := range lowerIsBetter {
		for i := 1; i < len(values); i++ {
			lo := TierFor(metric, values[i-1])
			hi := TierFor(metric, values[i])
			if rank[lo] < rank[hi] {
				t.Errorf("%s tier not monotonic: %v→%s but %v→%s", metric, values[i-1], lo, values[i], hi)
			}
		}
	}
}

func TestOverallScore(t *testing.T) {
	tests := []struct {
		name                   string
		freq, lead, fail, mttr string
		want                   float64
		wantRounded            int
		wantTier               string
	}{
		{"all elite", domain.TierElite, domain.TierElite, domain.TierElite, domain.TierElite, 100, 100, domain.TierElite},
		{"all low", domain.TierLow, domain.TierLow, domain.TierLow, domain.TierLow, 25, 25, domain.TierMedium},
		{"mixed half point rounds up", domain.TierElite, domain.TierElite, domain.TierHigh, domain.TierHigh, 87.5, 88, domain.TierElite},
		{"three elite one high", domain.TierElite, domain.TierElite, domain.TierHigh, domain.TierElite, 93.75, 94, domain.TierElite},
		{"two medium two low", domain.TierMedium, domain.TierMedium, domain.TierLow, domain.TierLow, 37.5, 38, domain.TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := OverallScore(tt.freq, tt.lead, tt.fail, tt.mttr)
			if score != tt.want {
				t.Errorf("OverallScore = %v, want %v", score, tt.want)
			}
			if got := RoundScore(score); got != tt.wantRounded {
				t.Errorf("RoundScore(%v) = %d, want %d", score, got, tt.wantRounded)
			}
			if got := OverallTier(score); got != tt.wantTier {
				t.Errorf("OverallTier(%v) = %s, want %s", score, got, tt.wantTier)
			}
		})
	}
}

func TestOverallTierBanding(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, domain.TierElite},
		{75, domain.TierElite},
		{74.9, domain.TierHigh},
		{50, domain.TierHigh},
		{49, domain.TierMedium},
		{25, domain.TierMedium},
		{24, domain.TierLow},
		{0, domain.TierLow},
	}
	for _, tt := range tests {
		if got := OverallTier(tt.score); got != tt.want {
			t.Errorf("OverallTier(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
