package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dorapulse/dora-pulse/internal/config"
)

func NewRouter(cfg config.Config, h *Handlers) *gin.Engine {
	if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		h.log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})
	if len(cfg.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.CORSOrigins
		cc.AllowMethods = []string{"GET", "POST"}
		r.Use(cors.New(cc))
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(h.mon.Handler()))
	r.GET("/scorecard/:service", h.GetScorecard)
	r.POST("/targets/:service", h.UpdateTargets)
	r.GET("/admin/last-run", h.LastRun)
	r.POST("/admin/run", h.RunNow)

	return r
}
