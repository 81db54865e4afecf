package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/dorapulse/dora-pulse/internal/monitoring"
	"github.com/dorapulse/dora-pulse/internal/repo"
)

type scorecardAPI interface {
	GetScorecard(ctx context.Context, service string, days int) (*domain.Scorecard, error)
	UpdateTargets(ctx context.Context, service string, targets domain.Targets) error
}

type runStore interface {
	GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Handlers struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     scorecardAPI
	runs    runStore
	mon     *monitoring.Metrics
	trigger func()
}

// NewHandlers wires the read path and the admin surface. trigger kicks off an
// out-of-band sync cycle; pass nil to disable the /admin/run endpoint's effect.
func NewHandlers(cfg config.Config, log zerolog.Logger, svc scorecardAPI, runs runStore, mon *monitoring.Metrics, trigger func()) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc, runs: runs, mon: mon, trigger: trigger}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) GetScorecard(c *gin.Context) {
	service := c.Param("service")
	days := 30
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 { days = n }
	}

	sc, err := h.svc.GetScorecard(c.Request.Context(), service, days)
	if err != nil {
		h.log.Error().Err(err).Str("service", service).Msg("scorecard read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.mon.ScorecardReads.Inc()
	c.JSON(http.StatusOK, sc)
}

func (h *Handlers) UpdateTargets(c *gin.Context) {
	service := c.Param("service")
	var targets domain.Targets
	if err := c.ShouldBindJSON(&targets); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.UpdateTargets(c.Request.Context(), service, targets); err != nil {
		h.log.Error().Err(err).Str("service", service).Msg("target update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.mon.TargetUpdates.Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.runs.GetLastRun(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
	if h.trigger != nil { go h.trigger() }
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
