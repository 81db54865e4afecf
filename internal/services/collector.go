// Package services holds the two business-logic surfaces: the incremental
// collection pipeline and the scorecard read path.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/dorapulse/dora-pulse/internal/monitoring"
	"github.com/dorapulse/dora-pulse/internal/scoring"
	"github.com/rs/zerolog"
)

type catalogClient interface {
	Services(ctx context.Context) ([]domain.ServiceRef, error)
}

type githubFetcher interface {
	FetchAll(ctx context.Context, repo string, since time.Time) (domain.RawData, error)
}

type collectorStore interface {
	GetLastSyncDate(ctx context.Context, entityRef string) (time.Time, error)
	UpsertDailyMetrics(ctx context.Context, entityRef, date string, m domain.DailyMetrics) error
	StartSyncRun(ctx context.Context) (int64, error)
	FinishSyncRun(ctx context.Context, id int64, servicesProcessed int, success bool, errStr string) error
}

// Collector drives one sync cycle: discover eligible services, fetch raw
// events since each service's watermark, reduce them into daily rows, and
// upsert. Services are processed strictly sequentially with a fixed pacing
// delay between them to stay under the external API's rate limits.
type Collector struct {
	cfg     config.Config
	log     zerolog.Logger
	store   collectorStore
	catalog catalogClient
	github  githubFetcher
	mon     *monitoring.Metrics

	serviceDelay time.Duration
	now          func() time.Time
}

func NewCollector(cfg config.Config, log zerolog.Logger, store collectorStore, catalog catalogClient, github githubFetcher, mon *monitoring.Metrics) *Collector {
	return &Collector{
		cfg:          cfg,
		log:          log,
		store:        store,
		catalog:      catalog,
		github:       github,
		mon:          mon,
		serviceDelay: 3 * time.Second,
		now:          time.Now,
	}
}

// Ready reports whether collection can run at all. A missing credential or an
// empty organization allow-list keeps the collector idle.
func (c *Collector) Ready() error {
	if strings.TrimSpace(c.cfg.GitHubToken) == "" {
		return errors.New("github token not configured")
	}
	if len(c.cfg.Organizations) == 0 {
		return errors.New("no github organizations configured")
	}
	return nil
}

// SyncAll runs one full cycle. A failure on one service is logged and the
// cycle moves on; only a catalog failure aborts the cycle.
func (c *Collector) SyncAll(ctx context.Context) error {
	runID, err := c.store.StartSyncRun(ctx)
	if err != nil { c.log.Error().Err(err).Msg("start sync run failed") }

	services, err := c.catalog.Services(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("catalog fetch failed")
		c.mon.SyncErrors.Inc()
		if runID != 0 { _ = c.store.FinishSyncRun(ctx, runID, 0, false, err.Error()) }
		return err
	}

	eligible := eligibleServices(c.cfg, services)
	c.log.Info().Int("services", len(eligible)).Msg("sync cycle started")

	processed := 0
	for i, svc := range eligible {
		if i > 0 {
			select {
			case <-time.After(c.serviceDelay):
			case <-ctx.Done():
				if runID != 0 { _ = c.store.FinishSyncRun(ctx, runID, processed, false, ctx.Err().Error()) }
				return ctx.Err()
			}
		}
		if err := c.syncService(ctx, svc); err != nil {
			c.log.Error().Err(err).Str("service", svc.Name).Str("repo", svc.Repo).Msg("service sync failed")
			c.mon.ServiceErrors.Inc()
			continue
		}
		processed++
		c.mon.ServicesSynced.Inc()
	}

	c.mon.SyncCycles.Inc()
	if runID != 0 { _ = c.store.FinishSyncRun(ctx, runID, processed, true, "") }
	c.log.Info().Int("processed", processed).Int("eligible", len(eligible)).Msg("sync cycle finished")
	return nil
}

// eligibleServices applies the discovery filters: a repo annotation must be
// present, the include list (when set) must name the service, the exclude
// list must not, and the repo's organization must be allow-listed.
func eligibleServices(cfg config.Config, services []domain.ServiceRef) []domain.ServiceRef {
	include := toSet(cfg.IncludeServices)
	exclude := toSet(cfg.ExcludeServices)
	orgs := toSet(cfg.Organizations)

	var out []domain.ServiceRef
	for _, s := range services {
		if s.Repo == "" { continue }
		if len(include) > 0 {
			if _, ok := include[s.Name]; !ok { continue }
		}
		if _, ok := exclude[s.Name]; ok { continue }
		org, _, ok := strings.Cut(s.Repo, "/")
		if !ok { continue }
		if _, ok := orgs[org]; !ok { continue }
		out = append(out, s)
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals { set[v] = struct{}{} }
	return set
}

func (c *Collector) syncService(ctx context.Context, svc domain.ServiceRef) error {
	ref := domain.EntityRef(svc.Name)
	today := dateOnly(c.now().UTC())

	last, err := c.store.GetLastSyncDate(ctx, ref)
	if err != nil { return fmt.Errorf("read watermark: %w", err) }
	since := sinceFor(last, today, c.cfg.InitialDays)

	c.log.Info().Str("service", svc.Name).Str("since", since.Format("2006-01-02")).Msg("fetching data")

	raw, err := c.github.FetchAll(ctx, svc.Repo, since)
	if err != nil { return err }

	c.log.Info().Str("service", svc.Name).
		Int("deployments", len(raw.Deployments)).
		Int("prs", len(raw.PRs)).
		Int("issues", len(raw.Issues)).
		Msg("new data fetched")

	// Every date in [since, today] gets a row, zero-activity days included,
	// so the scorecard's rolling-window history stays contiguous.
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		if err := c.store.UpsertDailyMetrics(ctx, ref, day, scoring.ReduceDay(raw, day)); err != nil {
			return fmt.Errorf("upsert %s: %w", day, err)
		}
	}
	return nil
}

// sinceFor picks the resume point: one day before the last synced date to
// re-cover the partially-ingested boundary day, or the initial backfill
// window for a service never synced before.
func sinceFor(last, today time.Time, initialDays int) time.Time {
	if last.IsZero() {
		return today.AddDate(0, 0, -initialDays)
	}
	return dateOnly(last.UTC()).AddDate(0, 0, -1)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
