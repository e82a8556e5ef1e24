package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveContexts     prometheus.Gauge
	TurnsAppended      prometheus.Counter
	Compactions        *prometheus.CounterVec
	CompactionLatency  prometheus.Histogram
	AssemblyStrategies *prometheus.CounterVec
	PersistFailures    prometheus.Counter
	Evictions          *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveContexts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_contexts",
			Help:      "Number of conversation contexts resident in memory.",
		}),
		TurnsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_appended_total",
			Help:      "Turns appended across all conversations.",
		}),
		Compactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Compaction cycles by result.",
		}, []string{"result"}),
		CompactionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_latency_ms",
			Help:      "Latency of successful compaction cycles in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		}),
		AssemblyStrategies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Context assemblies by strategy tier.",
		}, []string{"strategy"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_persist_failures_total",
			Help:      "Failed durable writes of the conversation summary.",
		}),
		Evictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_evictions_total",
			Help:      "Context evictions by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) ObserveCompactionLatency(d time.Duration) {
	m.CompactionLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
