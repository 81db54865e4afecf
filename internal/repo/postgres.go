package repo

import (
	"context"
	"errors"
	"time"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
	if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Store is the durable home of per-service daily aggregates and target rows.
type Store struct {
	db  *DB
	log zerolog.Logger
}

func NewStore(d *DB, log zerolog.Logger) *Store { return &Store{db: d, log: log} }

func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := s.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (s *Store) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := s.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil { return errors.New("advisory unlock returned false") }
	return err
}

// UpsertDailyMetrics writes one day's aggregate. Re-syncs overwrite the row,
// so re-processing the watermark overlap day is safe.
func (s *Store) UpsertDailyMetrics(ctx context.Context, entityRef, date string, m domain.DailyMetrics) error {
	const q = `
		INSERT INTO dora_daily_metrics(entity_ref, date, deployment_count, deployment_failure_count,
			lead_time_avg_seconds, mttr_avg_seconds, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT(entity_ref, date) DO UPDATE SET
			deployment_count=EXCLUDED.deployment_count,
			deployment_failure_count=EXCLUDED.deployment_failure_count,
			lead_time_avg_seconds=EXCLUDED.lead_time_avg_seconds,
			mttr_avg_seconds=EXCLUDED.mttr_avg_seconds,
			updated_at=now()`
	_, err := s.db.Pool.Exec(ctx, q, entityRef, date, m.DeploymentCount, m.FailureCount, m.LeadTimeSeconds, m.MTTRSeconds)
	return err
}

// PeriodAggregate is a window's summed/averaged raw aggregate. Missing rows
// collapse to zeros here, at the store boundary, not in business logic.
type PeriodAggregate struct {
	TotalDeployments   int
	TotalFailures      int
	LeadTimeAvgSeconds float64
	MTTRAvgSeconds     float64
}

func (s *Store) GetPeriodAggregate(ctx context.Context, entityRef string, start, end time.Time) (PeriodAggregate, error) {
	const q = `
		SELECT COALESCE(SUM(deployment_count),0), COALESCE(SUM(deployment_failure_count),0),
			COALESCE(AVG(lead_time_avg_seconds),0), COALESCE(AVG(mttr_avg_seconds),0)
		FROM dora_daily_metrics
		WHERE entity_ref=$1 AND date BETWEEN $2 AND $3`
	var agg PeriodAggregate
	row := s.db.Pool.QueryRow(ctx, q, entityRef, start, end)
	if err := row.Scan(&agg.TotalDeployments, &agg.TotalFailures, &agg.LeadTimeAvgSeconds, &agg.MTTRAvgSeconds); err != nil {
		return PeriodAggregate{}, err
	}
	return agg, nil
}

// DailyRow is one stored day, read back for history charts.
type DailyRow struct {
	Date            time.Time
	DeploymentCount int
	FailureCount    int
	LeadTimeSeconds int
	MTTRSeconds     int
}

func (s *Store) GetDailyHistory(ctx context.Context, entityRef string, start, end time.Time) ([]DailyRow, error) {
	const q = `
		SELECT date, COALESCE(deployment_count,0), COALESCE(deployment_failure_count,0),
			COALESCE(lead_time_avg_seconds,0), COALESCE(mttr_avg_seconds,0)
		FROM dora_daily_metrics
		WHERE entity_ref=$1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC`
	rows, err := s.db.Pool.Query(ctx, q, entityRef, start, end)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []DailyRow
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.Date, &r.DeploymentCount, &r.FailureCount, &r.LeadTimeSeconds, &r.MTTRSeconds); err != nil { return nil, err }
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetTargets returns nil when no target row exists; callers fall back to the
// configured defaults.
func (s *Store) GetTargets(ctx context.Context, entityRef string) (*domain.Targets, error) {
	const q = `SELECT target_freq, target_lead, target_fail, target_mttr FROM dora_targets WHERE entity_ref=$1`
	var t domain.Targets
	err := s.db.Pool.QueryRow(ctx, q, entityRef).Scan(&t.DeploymentFrequency, &t.LeadTime, &t.ChangeFailureRate, &t.MTTR)
	if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
	if err != nil { return nil, err }
	return &t, nil
}

func (s *Store) UpsertTargets(ctx context.Context, entityRef string, t domain.Targets) error {
	const q = `
		INSERT INTO dora_targets(entity_ref, target_freq, target_lead, target_fail, target_mttr, updated_at)
		VALUES($1,$2,$3,$4,$5,now())
		ON CONFLICT(entity_ref) DO UPDATE SET
			target_freq=EXCLUDED.target_freq,
			target_lead=EXCLUDED.target_lead,
			target_fail=EXCLUDED.target_fail,
			target_mttr=EXCLUDED.target_mttr,
			updated_at=now()`
	_, err := s.db.Pool.Exec(ctx, q, entityRef, t.DeploymentFrequency, t.LeadTime, t.ChangeFailureRate, t.MTTR)
	return err
}

// GetLastSyncDate returns the most recent stored date for a service, or the
// zero time when the service has never been synced.
func (s *Store) GetLastSyncDate(ctx context.Context, entityRef string) (time.Time, error) {
	var last *time.Time
	err := s.db.Pool.QueryRow(ctx, `SELECT MAX(date) FROM dora_daily_metrics WHERE entity_ref=$1`, entityRef).Scan(&last)
	if err != nil { return time.Time{}, err }
	if last == nil { return time.Time{}, nil }
	return *last, nil
}

// Sync runs

func (s *Store) StartSyncRun(ctx context.Context) (int64, error) {
	const q = `INSERT INTO sync_runs(started_at, success) VALUES(now(), false) RETURNING id`
	var id int64
	if err := s.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil { return 0, err }
	return id, nil
}

func (s *Store) FinishSyncRun(ctx context.Context, id int64, servicesProcessed int, success bool, errStr string) error {
	const q = `UPDATE sync_runs SET finished_at=now(), services_processed=$2, success=$3, error=$4 WHERE id=$1`
	_, err := s.db.Pool.Exec(ctx, q, id, servicesProcessed, success, errStr)
	return err
}

type LastRun struct {
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at"`
	ServicesProcessed int        `json:"services_processed"`
	Success           bool       `json:"success"`
	Error             string     `json:"error"`
}

func (s *Store) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT started_at, finished_at, coalesce(services_processed,0), coalesce(success,false), coalesce(error,'')
		FROM sync_runs ORDER BY id DESC LIMIT 1`
	row := s.db.Pool.QueryRow(ctx, q)
	lr := &LastRun{}
	if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.ServicesProcessed, &lr.Success, &lr.Error); err != nil {
		return nil, err
	}
	return lr, nil
}
