package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/dorapulse/dora-pulse/internal/monitoring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	services []domain.ServiceRef
	err      error
}

func (f *fakeCatalog) Services(context.Context) ([]domain.ServiceRef, error) {
	return f.services, f.err
}

type fakeGitHub struct {
	data    map[string]domain.RawData
	badRepo string
	calls   []string
}

func (f *fakeGitHub) FetchAll(_ context.Context, repo string, _ time.Time) (domain.RawData, error) {
	f.calls = append(f.calls, repo)
	if repo == f.badRepo { return domain.RawData{}, errors.New("boom") }
	return f.data[repo], nil
}

type fakeCollectorStore struct {
	lastSync map[string]time.Time
	upserts  map[string]domain.DailyMetrics // "ref|date"

	runStarted  bool
	runFinished bool
	processed   int
	success     bool
}

func newFakeCollectorStore() *fakeCollectorStore {
	return &fakeCollectorStore{
		lastSync: map[string]time.Time{},
		upserts:  map[string]domain.DailyMetrics{},
	}
}

func (f *fakeCollectorStore) GetLastSyncDate(_ context.Context, ref string) (time.Time, error) {
	return f.lastSync[ref], nil
}

func (f *fakeCollectorStore) UpsertDailyMetrics(_ context.Context, ref, date string, m domain.DailyMetrics) error {
	f.upserts[ref+"|"+date] = m
	return nil
}

func (f *fakeCollectorStore) StartSyncRun(context.Context) (int64, error) {
	f.runStarted = true
	return 1, nil
}

func (f *fakeCollectorStore) FinishSyncRun(_ context.Context, _ int64, processed int, success bool, _ string) error {
	f.runFinished = true
	f.processed = processed
	f.success = success
	return nil
}

func testCollector(cfg config.Config, store *fakeCollectorStore, cat *fakeCatalog, gh *fakeGitHub, now time.Time) *Collector {
	c := NewCollector(cfg, zerolog.Nop(), store, cat, gh, monitoring.New())
	c.serviceDelay = 0
	c.now = func() time.Time { return now }
	return c
}

func TestEligibleServices(t *testing.T) {
	cfg := config.Config{
		Organizations:   []string{"acme"},
		ExcludeServices: []string{"legacy"},
	}
	services := []domain.ServiceRef{
		{Name: "orders", Repo: "acme/orders"},
		{Name: "no-repo", Repo: ""},
		{Name: "legacy", Repo: "acme/legacy"},
		{Name: "foreign", Repo: "other/foreign"},
		{Name: "broken", Repo: "not-a-coordinate"},
	}

	got := eligibleServices(cfg, services)
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].Name)
}

func TestEligibleServices_IncludeList(t *testing.T) {
	cfg := config.Config{
		Organizations:   []string{"acme"},
		IncludeServices: []string{"billing"},
	}
	services := []domain.ServiceRef{
		{Name: "orders", Repo: "acme/orders"},
		{Name: "billing", Repo: "acme/billing"},
	}

	got := eligibleServices(cfg, services)
	require.Len(t, got, 1)
	assert.Equal(t, "billing", got[0].Name)
}

func TestSinceFor(t *testing.T) {
	today := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)

	last := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-09", sinceFor(last, today, 30).Format("2006-01-02"),
		"resumes one day before the watermark")

	assert.Equal(t, "2023-12-13", sinceFor(time.Time{}, today, 30).Format("2006-01-02"),
		"initial backfill when never synced")
}

func TestSyncAll_WritesDenseDailyRows(t *testing.T) {
	now := time.Date(2024, 1, 12, 15, 30, 0, 0, time.UTC)
	cfg := config.Config{Organizations: []string{"acme"}, InitialDays: 30}

	store := newFakeCollectorStore()
	store.lastSync["component:default/orders"] = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	gh := &fakeGitHub{data: map[string]domain.RawData{
		"acme/orders": {
			Deployments: []domain.Deployment{
				{CreatedAt: "2024-01-11T09:00:00Z", Conclusion: domain.ConclusionSuccess},
			},
		},
	}}
	cat := &fakeCatalog{services: []domain.ServiceRef{{Name: "orders", Repo: "acme/orders"}}}

	c := testCollector(cfg, store, cat, gh, now)
	require.NoError(t, c.SyncAll(context.Background()))

	// watermark 01-10 resumes at 01-09, so four rows through today
	require.Len(t, store.upserts, 4)
	for _, date := range []string{"2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12"} {
		_, ok := store.upserts["component:default/orders|"+date]
		assert.True(t, ok, date)
	}
	assert.Equal(t, 1, store.upserts["component:default/orders|2024-01-11"].DeploymentCount)
	assert.Equal(t, 0, store.upserts["component:default/orders|2024-01-12"].DeploymentCount,
		"inactive days still get a zero row")

	assert.True(t, store.runStarted)
	assert.True(t, store.runFinished)
	assert.True(t, store.success)
	assert.Equal(t, 1, store.processed)
}

func TestSyncAll_OneFailingServiceDoesNotAbortCycle(t *testing.T) {
	now := time.Date(2024, 1, 12, 15, 30, 0, 0, time.UTC)
	cfg := config.Config{Organizations: []string{"acme"}, InitialDays: 2}

	store := newFakeCollectorStore()
	gh := &fakeGitHub{badRepo: "acme/flaky", data: map[string]domain.RawData{}}
	cat := &fakeCatalog{services: []domain.ServiceRef{
		{Name: "flaky", Repo: "acme/flaky"},
		{Name: "orders", Repo: "acme/orders"},
	}}

	c := testCollector(cfg, store, cat, gh, now)
	require.NoError(t, c.SyncAll(context.Background()))

	assert.Equal(t, []string{"acme/flaky", "acme/orders"}, gh.calls)
	assert.Equal(t, 1, store.processed)
	assert.True(t, store.success)
	// rows only for the healthy service
	for key := range store.upserts {
		assert.Contains(t, key, "component:default/orders|")
	}
}

func TestSyncAll_CatalogFailureAborts(t *testing.T) {
	now := time.Date(2024, 1, 12, 15, 30, 0, 0, time.UTC)
	store := newFakeCollectorStore()
	cat := &fakeCatalog{err: errors.New("catalog down")}

	c := testCollector(config.Config{Organizations: []string{"acme"}}, store, cat, &fakeGitHub{}, now)
	err := c.SyncAll(context.Background())
	require.Error(t, err)
	assert.True(t, store.runFinished)
	assert.False(t, store.success)
	assert.Empty(t, store.upserts)
}

func TestReady(t *testing.T) {
	c := &Collector{cfg: config.Config{}}
	assert.Error(t, c.Ready())

	c.cfg.GitHubToken = "tok"
	assert.Error(t, c.Ready(), "still needs an org allow-list")

	c.cfg.Organizations = []string{"acme"}
	assert.NoError(t, c.Ready())
}
