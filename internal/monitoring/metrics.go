// Package monitoring exposes Prometheus counters for the sync pipeline and
// the scorecard read path.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SyncCycles     prometheus.Counter
	SyncErrors     prometheus.Counter
	ServicesSynced prometheus.Counter
	ServiceErrors  prometheus.Counter
	ScorecardReads prometheus.Counter
	TargetUpdates  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "sync_cycles_total",
			Help:      "Completed collector sync cycles.",
		}),
		SyncErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "sync_errors_total",
			Help:      "Sync cycles aborted before processing services.",
		}),
		ServicesSynced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "services_synced_total",
			Help:      "Services successfully processed across all cycles.",
		}),
		ServiceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "service_errors_total",
			Help:      "Per-service failures skipped during sync cycles.",
		}),
		ScorecardReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "scorecard_reads_total",
			Help:      "Scorecard requests served.",
		}),
		TargetUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dorapulse",
			Name:      "target_updates_total",
			Help:      "Target rows written via the API.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
