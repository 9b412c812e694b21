package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/question-bank/internal/model"
)

const namespace = "qbank"

// Metrics records runner activity. A nil *Metrics records nothing.
type Metrics struct {
	items         *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	inferDuration *prometheus.HistogramVec
}

// NewMetrics registers the enrichment metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		items: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_items_total",
			Help:      "Processed enrichment items by workflow and resulting task status.",
		}, []string{"workflow", "status"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_cycles_total",
			Help:      "Enrichment cycles by workflow and result (ran, busy, error).",
		}, []string{"workflow", "result"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrich_cycle_duration_seconds",
			Help:      "Wall time of completed enrichment cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"workflow"}),
		inferDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrich_inference_duration_seconds",
			Help:      "Latency of inference calls, including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
	}
}

func (m *Metrics) item(kind model.TaskKind, status model.TaskStatus) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) cycle(kind model.TaskKind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(kind), result).Inc()
	if result != "busy" {
		m.cycleDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	}
}

func (m *Metrics) inference(kind model.TaskKind, d time.Duration) {
	if m == nil {
		return
	}
	m.inferDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}
