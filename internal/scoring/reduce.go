package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/dorapulse/dora-pulse/internal/domain"
)

// ReduceDay folds one sync cycle's raw events into the aggregate for a single
// UTC calendar date (YYYY-MM-DD). Events are matched by timestamp date prefix.
// Averages round half away from zero. Deterministic and side-effect free, so
// re-running a date overwrites with the identical row.
func ReduceDay(raw domain.RawData, date string) domain.DailyMetrics {
	var m domain.DailyMetrics

	for _, d := range raw.Deployments {
		if !strings.HasPrefix(d.CreatedAt, date) { continue }
		m.DeploymentCount++
		if d.Conclusion == domain.ConclusionFailure { m.FailureCount++ }
	}

	var leadSum float64
	leadN := 0
	for _, pr := range raw.PRs {
		if pr.MergedAt == nil || !strings.HasPrefix(*pr.MergedAt, date) { continue }
		secs, ok := spanSeconds(pr.CreatedAt, *pr.MergedAt)
		if !ok { continue }
		leadSum += secs
		leadN++
	}
	if leadN > 0 { m.LeadTimeSeconds = int(math.Round(leadSum / float64(leadN))) }

	var mttrSum float64
	mttrN := 0
	for _, is := range raw.Issues {
		if is.ClosedAt == nil || !strings.HasPrefix(*is.ClosedAt, date) { continue }
		secs, ok := spanSeconds(is.CreatedAt, *is.ClosedAt)
		if !ok { continue }
		mttrSum += secs
		mttrN++
	}
	if mttrN > 0 { m.MTTRSeconds = int(math.Round(mttrSum / float64(mttrN))) }

	return m
}

func spanSeconds(from, to string) (float64, bool) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil { return 0, false }
	end, err := time.Parse(time.RFC3339, to)
	if err != nil { return 0, false }
	return end.Sub(start).Seconds(), true
}
