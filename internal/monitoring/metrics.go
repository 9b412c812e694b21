package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/model"
)

// scrapeTimeout bounds the store queries made during one scrape.
const scrapeTimeout = 5 * time.Second

var queueTasksDesc = prometheus.NewDesc(
	"qbank_queue_tasks",
	"Enrichment tasks by workflow and status at scrape time.",
	[]string{"workflow", "status"}, nil,
)

// QueueCollector exports task counts as gauges, read from the store on
// every scrape.
type QueueCollector struct {
	counts TaskCounter
}

// NewQueueCollector returns a collector over counts.
func NewQueueCollector(counts TaskCounter) *QueueCollector {
	return &QueueCollector{counts: counts}
}

// Describe implements prometheus.Collector.
func (q *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueTasksDesc
}

// Collect implements prometheus.Collector. A workflow whose count fails is
// left out of the scrape.
func (q *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	for _, kind := range model.AllKinds {
		counts, err := q.counts.CountTasks(ctx, kind)
		if err != nil {
			zap.L().Warn("monitoring: queue scrape failed", zap.String("workflow", string(kind)), zap.Error(err))
			continue
		}
		for _, status := range model.AllStatuses {
			ch <- prometheus.MustNewConstMetric(queueTasksDesc, prometheus.GaugeValue,
				float64(counts[status]), string(kind), string(status))
		}
	}
}
