package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dorapulse/dora-pulse/internal/adapters/catalog"
	"github.com/dorapulse/dora-pulse/internal/adapters/github"
	"github.com/dorapulse/dora-pulse/internal/config"
	httpapi "github.com/dorapulse/dora-pulse/internal/http"
	"github.com/dorapulse/dora-pulse/internal/jobs"
	"github.com/dorapulse/dora-pulse/internal/logger"
	"github.com/dorapulse/dora-pulse/internal/monitoring"
	"github.com/dorapulse/dora-pulse/internal/repo"
	"github.com/dorapulse/dora-pulse/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repo.Migrate(cfg.DBDSN); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	store := repo.NewStore(db, log)

	mon := monitoring.New()
	gh := github.NewClient(cfg, log)
	cat := catalog.NewClient(cfg, log)

	coll := services.NewCollector(cfg, log, store, cat, gh, mon)
	scorecards := services.NewScorecard(cfg, log, store)

	cron := jobs.NewCron(cfg, log, coll, store)
	cron.Start()
	defer cron.Stop()

	h := httpapi.NewHandlers(cfg, log, scorecards, store, mon, cron.RunNow)
	router := httpapi.NewRouter(cfg, h)

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil { log.Error().Err(err).Msg("http server error") }
	}

	time.Sleep(500 * time.Millisecond)
}
