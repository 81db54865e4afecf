package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/dorapulse/dora-pulse/internal/repo"
	"github.com/dorapulse/dora-pulse/internal/scoring"
	"github.com/rs/zerolog"
)

type scorecardStore interface {
	GetPeriodAggregate(ctx context.Context, entityRef string, start, end time.Time) (repo.PeriodAggregate, error)
	GetDailyHistory(ctx context.Context, entityRef string, start, end time.Time) ([]repo.DailyRow, error)
	GetTargets(ctx context.Context, entityRef string) (*domain.Targets, error)
	UpsertTargets(ctx context.Context, entityRef string, t domain.Targets) error
}

// Scorecard computes the rolling-window DORA scorecard from stored daily rows.
type Scorecard struct {
	cfg   config.Config
	log   zerolog.Logger
	store scorecardStore
	now   func() time.Time
}

func NewScorecard(cfg config.Config, log zerolog.Logger, store scorecardStore) *Scorecard {
	return &Scorecard{cfg: cfg, log: log, store: store, now: time.Now}
}

// GetScorecard aggregates the trailing window and the adjacent prior window,
// tiers each metric, and folds the four tiers into a composite score.
func (s *Scorecard) GetScorecard(ctx context.Context, service string, days int) (*domain.Scorecard, error) {
	if days <= 0 { days = 30 }
	ref := domain.EntityRef(service)

	today := s.now().UTC()
	past := today.AddDate(0, 0, -days)
	prev := past.AddDate(0, 0, -days)

	cur, err := s.store.GetPeriodAggregate(ctx, ref, past, today)
	if err != nil { return nil, fmt.Errorf("current window: %w", err) }
	before, err := s.store.GetPeriodAggregate(ctx, ref, prev, past)
	if err != nil { return nil, fmt.Errorf("previous window: %w", err) }

	rows, err := s.store.GetDailyHistory(ctx, ref, past, today)
	if err != nil { return nil, fmt.Errorf("daily history: %w", err) }
	hist := buildHistory(rows, past, days)

	targets := domain.Targets{
		DeploymentFrequency: s.cfg.TargetDeployFreqPerWeek,
		LeadTime:            s.cfg.TargetLeadTimeHours,
		ChangeFailureRate:   s.cfg.TargetFailureRatePct,
		MTTR:                s.cfg.TargetMTTRMinutes,
	}
	if stored, err := s.store.GetTargets(ctx, ref); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	} else if stored != nil {
		targets = *stored
	}

	metrics := domain.ScorecardMetrics{
		DeploymentFrequency: buildMetric(domain.MetricDeploymentFrequency,
			freqPerWeek(cur, days), freqPerWeek(before, days), targets.DeploymentFrequency, hist.freq),
		LeadTime: buildMetric(domain.MetricLeadTime,
			leadHours(cur), leadHours(before), targets.LeadTime, hist.lead),
		ChangeFailureRate: buildMetric(domain.MetricChangeFailureRate,
			failurePct(cur), failurePct(before), targets.ChangeFailureRate, hist.fail),
		MTTR: buildMetric(domain.MetricMTTR,
			mttrMinutes(cur), mttrMinutes(before), targets.MTTR, hist.mttr),
	}

	overall := scoring.OverallScore(
		metrics.DeploymentFrequency.Tier,
		metrics.LeadTime.Tier,
		metrics.ChangeFailureRate.Tier,
		metrics.MTTR.Tier,
	)

	return &domain.Scorecard{
		Service:      service,
		Period:       fmt.Sprintf("%d days", days),
		Metrics:      metrics,
		OverallScore: scoring.RoundScore(overall),
		OverallTier:  scoring.OverallTier(overall),
	}, nil
}

// UpdateTargets upserts a service's target row. Nothing is recomputed; the
// new targets show up on the next scorecard read.
func (s *Scorecard) UpdateTargets(ctx context.Context, service string, targets domain.Targets) error {
	return s.store.UpsertTargets(ctx, domain.EntityRef(service), targets)
}

// Unit conversions from raw window aggregates, all rounded to one decimal.

func freqPerWeek(agg repo.PeriodAggregate, days int) float64 {
	return round1(float64(agg.TotalDeployments) / float64(days) * 7)
}

func leadHours(agg repo.PeriodAggregate) float64 {
	return round1(agg.LeadTimeAvgSeconds / 3600)
}

func failurePct(agg repo.PeriodAggregate) float64 {
	if agg.TotalDeployments == 0 { return 0 }
	return round1(float64(agg.TotalFailures) / float64(agg.TotalDeployments) * 100)
}

func mttrMinutes(agg repo.PeriodAggregate) float64 {
	return round1(agg.MTTRAvgSeconds / 60)
}

func buildMetric(metric string, current, previous, target float64, history []int) domain.MetricData {
	change := 0.0
	if previous > 0 {
		change = (current - previous) / previous * 100
	} else if current > 0 {
		change = 100
	}
	return domain.MetricData{
		Current:  current,
		Previous: previous,
		Change:   round1(change),
		Target:   target,
		Tier:     scoring.TierFor(metric, current),
		History:  history,
	}
}

type historySeries struct {
	freq []int
	lead []int
	fail []int
	mttr []int
}

// buildHistory turns sparse stored rows into four dense day-indexed series,
// one point per day in chronological order, zero-filled for missing dates.
// Length always equals the requested window size.
func buildHistory(rows []repo.DailyRow, past time.Time, days int) historySeries {
	byDate := make(map[string]repo.DailyRow, len(rows))
	for _, r := range rows {
		byDate[r.Date.UTC().Format("2006-01-02")] = r
	}

	h := historySeries{
		freq: make([]int, 0, days),
		lead: make([]int, 0, days),
		fail: make([]int, 0, days),
		mttr: make([]int, 0, days),
	}
	for i := 0; i < days; i++ {
		key := past.AddDate(0, 0, i+1).Format("2006-01-02")
		row := byDate[key]

		h.freq = append(h.freq, row.DeploymentCount)
		h.lead = append(h.lead, int(math.Round(float64(row.LeadTimeSeconds)/3600)))
		if row.DeploymentCount > 0 {
			h.fail = append(h.fail, int(math.Round(float64(row.FailureCount)/float64(row.DeploymentCount)*100)))
		} else {
			h.fail = append(h.fail, 0)
		}
		h.mttr = append(h.mttr, int(math.Round(float64(row.MTTRSeconds)/60)))
	}
	return h
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
