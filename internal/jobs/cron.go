package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dorapulse/dora-pulse/internal/config"
)

type collector interface {
	Ready() error
	SyncAll(ctx context.Context) error
}

type locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64) error
}

// lockKey serializes sync cycles across replicas sharing one database.
const lockKey int64 = 726073

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	coll collector
	lock locker
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, coll collector, lock locker) *Cron {
	loc, _ := time.LoadLocation(cfg.TZ)
	c := cron.New(cron.WithLocation(loc))
	cr := &Cron{cfg: cfg, log: log, coll: coll, lock: lock, c: c}
	_, _ = c.AddFunc(fmt.Sprintf("@every %dm", cfg.SyncIntervalMinutes), cr.sync)
	return cr
}

// Start schedules the periodic sync and fires one cycle immediately so a fresh
// deployment has data before the first interval elapses. With collection
// unconfigured the scheduler stays idle and the read path keeps serving.
func (cr *Cron) Start() {
	if err := cr.coll.Ready(); err != nil {
		cr.log.Warn().Err(err).Msg("cron: collection disabled")
		return
	}
	go cr.sync()
	cr.c.Start()
}

func (cr *Cron) Stop() { cr.c.Stop() }

// RunNow fires an out-of-band cycle, same single-flight rules as the schedule.
func (cr *Cron) RunNow() { go cr.sync() }

func (cr *Cron) sync() {
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Minute)
	defer cancel()

	ok, err := cr.lock.TryAdvisoryLock(ctx, lockKey)
	if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
	if !ok { cr.log.Info().Msg("cron: sync already running elsewhere"); return }
	defer func() { _ = cr.lock.AdvisoryUnlock(context.Background(), lockKey) }()

	cr.log.Info().Msg("cron: sync cycle")
	if err := cr.coll.SyncAll(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: sync failed") }
}
