// Package monitoring reports queue health: per-workflow snapshots for the
// status surface, Prometheus queue gauges and webhook alerts on failed tasks.
package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/enrich"
	"github.com/sells-group/question-bank/internal/model"
)

// TaskCounter is the part of the store the collector reads.
type TaskCounter interface {
	CountTasks(ctx context.Context, kind model.TaskKind) (map[model.TaskStatus]int, error)
}

// StatusSource reports runner counters. *enrich.Set satisfies it.
type StatusSource interface {
	Statuses() []enrich.Status
}

// WorkflowSnapshot is one workflow's queue and runner state.
type WorkflowSnapshot struct {
	Workflow model.TaskKind           `json:"workflow"`
	Queue    map[model.TaskStatus]int `json:"queue"`
	// FailureRate is failed / (done + failed); zero before anything finished.
	FailureRate float64 `json:"failure_rate"`
	// Runner is nil when the workflow has no runner in this process.
	Runner *enrich.Status `json:"runner,omitempty"`
}

// Finished is the number of tasks that reached done or failed.
func (w WorkflowSnapshot) Finished() int {
	return w.Queue[model.TaskDone] + w.Queue[model.TaskFailed]
}

// Snapshot is a point-in-time view of every workflow.
type Snapshot struct {
	Workflows   []WorkflowSnapshot `json:"workflows"`
	CollectedAt time.Time          `json:"collected_at"`
}

// Collector gathers snapshots from the store and the runners.
type Collector struct {
	counts   TaskCounter
	statuses StatusSource
	clock    clockwork.Clock
}

// NewCollector creates a collector. statuses may be nil when no runners
// are active, as in one-shot CLI commands.
func NewCollector(counts TaskCounter, statuses StatusSource, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{counts: counts, statuses: statuses, clock: clock}
}

// Collect counts tasks for every workflow kind and attaches runner state.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	runners := make(map[model.TaskKind]enrich.Status)
	if c.statuses != nil {
		for _, s := range c.statuses.Statuses() {
			runners[s.Workflow] = s
		}
	}

	snap := &Snapshot{
		Workflows:   make([]WorkflowSnapshot, 0, len(model.AllKinds)),
		CollectedAt: c.clock.Now().UTC(),
	}
	for _, kind := range model.AllKinds {
		counts, err := c.counts.CountTasks(ctx, kind)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: count %s tasks", kind)
		}
		if counts == nil {
			counts = make(map[model.TaskStatus]int)
		}

		ws := WorkflowSnapshot{Workflow: kind, Queue: counts}
		if finished := ws.Finished(); finished > 0 {
			ws.FailureRate = float64(counts[model.TaskFailed]) / float64(finished)
		}
		if s, ok := runners[kind]; ok {
			ws.Runner = &s
		}
		snap.Workflows = append(snap.Workflows, ws)
	}
	return snap, nil
}
