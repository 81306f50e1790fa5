package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the harness's own self-instrumentation surface. The teacher's
// Prometheus client only ever queried an external server (pkg/monitoring);
// here the harness is the thing being measured, so it registers and serves
// its own counters instead.
type Metrics struct {
	RulesPushed    *prometheus.CounterVec
	ProxyErrors    *prometheus.CounterVec
	ChecksRun      *prometheus.CounterVec
	ChecksFailed   *prometheus.CounterVec
	RecipeDuration prometheus.Histogram
}

// NewMetrics creates every harness metric and registers it against reg. A
// nil reg registers nothing, so repeated runs in the same process (e.g. in
// tests) don't collide on prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RulesPushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gremlinsdk_rules_pushed_total",
			Help: "Fault rules successfully pushed to a proxy endpoint.",
		}, []string{"service"}),
		ProxyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gremlinsdk_proxy_errors_total",
			Help: "Errors encountered talking to a proxy endpoint, by operation.",
		}, []string{"op"}),
		ChecksRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gremlinsdk_checks_run_total",
			Help: "Checklist checks executed, by check name.",
		}, []string{"check"}),
		ChecksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gremlinsdk_checks_failed_total",
			Help: "Checklist checks that failed, by check name.",
		}, []string{"check"}),
		RecipeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gremlinsdk_recipe_duration_seconds",
			Help:    "Wall-clock time to run one recipe end to end.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler exposes the metrics in Prometheus exposition format for an
// operator's own scraper to pull, per spec §6's optional metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
