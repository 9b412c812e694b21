// Package enrich drives the enrichment workflows: each cycle claims a batch
// of queued tasks, asks the model for one field per question and writes the
// result back only after it passes validation and the confidence gate.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/guard"
	"github.com/sells-group/question-bank/internal/inference"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/ratelimit"
	"github.com/sells-group/question-bank/internal/store"
)

// Config holds the queue parameters of one workflow.
type Config struct {
	BatchSize           int
	MaxAttempts         int
	ConfidenceThreshold float64
	// StaleAfter releases processing claims older than this at cycle
	// start. Zero disables stale-claim recovery.
	StaleAfter time.Duration
	// Populate enqueues eligible questions before claiming.
	Populate      bool
	PopulateLimit int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.PopulateLimit <= 0 {
		c.PopulateLimit = 500
	}
	return c
}

// Status is a point-in-time snapshot of a workflow's runner.
type Status struct {
	Workflow       model.TaskKind `json:"workflow"`
	IsProcessing   bool           `json:"is_processing"`
	LastRun        *time.Time     `json:"last_run,omitempty"`
	TotalProcessed int            `json:"total_processed"`
	TotalSucceeded int            `json:"total_succeeded"`
	TotalFailed    int            `json:"total_failed"`
	TotalSkipped   int            `json:"total_skipped"`
	LastError      string         `json:"last_error,omitempty"`
}

// CycleResult summarizes one call to RunCycle.
type CycleResult struct {
	// Busy is set when another cycle of the same workflow was running and
	// this call did nothing.
	Busy      bool
	Requeued  int
	Populated int
	Claimed   int
	Processed int
	Succeeded int
	// Retried counts failed items returned to pending; Failed counts items
	// that exhausted their attempts.
	Retried int
	Failed  int
	Skipped int
	Err     error
}

// Runner executes cycles of a single workflow.
type Runner struct {
	wf      Workflow
	store   store.Store
	infer   inference.Inferrer
	limiter *ratelimit.Limiter
	guard   *guard.Guard
	clock   clockwork.Clock
	metrics *Metrics
	cfg     Config

	mu     sync.Mutex
	status Status
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithClock sets the clock used for timestamps and stale-claim cutoffs.
func WithClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithMetrics records cycle and item metrics.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithGuard shares a single-flight guard between runners and callers.
func WithGuard(g *guard.Guard) RunnerOption {
	return func(r *Runner) { r.guard = g }
}

// NewRunner creates a Runner for wf. A nil limiter means no delay between
// items.
func NewRunner(wf Workflow, st store.Store, inf inference.Inferrer, limiter *ratelimit.Limiter, cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		wf:      wf,
		store:   st,
		infer:   inf,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		status:  Status{Workflow: wf.Kind()},
	}
	for _, o := range opts {
		o(r)
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.guard == nil {
		r.guard = guard.New()
	}
	if r.limiter == nil {
		r.limiter = ratelimit.New(0, nil, r.clock)
	}
	return r
}

// Kind returns the workflow kind.
func (r *Runner) Kind() model.TaskKind { return r.wf.Kind() }

// Workflow returns the runner's workflow.
func (r *Runner) Workflow() Workflow { return r.wf }

// Status returns a snapshot of the runner's counters.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.IsProcessing = r.guard.Running(string(r.wf.Kind()))
	if s.LastRun != nil {
		t := *s.LastRun
		s.LastRun = &t
	}
	return s
}

// Populate enqueues eligible questions without a task of this workflow.
func (r *Runner) Populate(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = r.cfg.PopulateLimit
	}
	n, err := r.store.PopulateTasks(ctx, r.wf.Kind(), r.wf.Eligibility(), limit)
	if err != nil {
		return 0, eris.Wrapf(err, "enrich: populate %s", r.wf.Kind())
	}
	return n, nil
}

// RunCycle runs one guarded cycle. When a cycle of the same workflow is
// already running it returns immediately with Busy set and touches no
// counters. Once claimed, every item is processed to completion with the
// full delay between items, even after ctx is cancelled.
func (r *Runner) RunCycle(ctx context.Context) (res CycleResult) {
	kind := r.wf.Kind()
	if !r.guard.TryEnter(string(kind)) {
		zap.L().Debug("enrich: cycle already running", zap.String("workflow", string(kind)))
		r.metrics.cycle(kind, "busy", 0)
		return CycleResult{Busy: true}
	}
	start := r.clock.Now()
	defer r.guard.Exit(string(kind))
	defer func() {
		if p := recover(); p != nil {
			res.Err = eris.Errorf("enrich: cycle panic: %v", p)
			zap.L().Error("enrich: cycle panic recovered",
				zap.String("workflow", string(kind)),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
		r.finish(res, start)
	}()

	work := context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("workflow", string(kind)))

	if r.cfg.StaleAfter > 0 {
		n, err := r.store.RequeueStale(work, kind, start.Add(-r.cfg.StaleAfter), r.cfg.MaxAttempts)
		if err != nil {
			res.Err = eris.Wrap(err, "enrich: requeue stale claims")
			return res
		}
		if n > 0 {
			log.Warn("enrich: released stale claims", zap.Int("count", n))
		}
		res.Requeued = n
	}

	if r.cfg.Populate {
		n, err := r.Populate(work, r.cfg.PopulateLimit)
		if err != nil {
			res.Err = err
			return res
		}
		res.Populated = n
	}

	tasks, err := r.store.ClaimTasks(work, kind, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		res.Err = eris.Wrapf(err, "enrich: claim %s", kind)
		return res
	}
	res.Claimed = len(tasks)
	if len(tasks) == 0 {
		log.Debug("enrich: nothing to claim")
		return res
	}
	log.Info("enrich: claimed batch", zap.Int("count", len(tasks)))

	for i, task := range tasks {
		if i > 0 {
			if err := r.limiter.Wait(work); err != nil {
				log.Debug("enrich: delay interrupted", zap.Error(err))
			}
		}

		outcome := r.processItem(work, task)
		status, err := r.resolve(work, task, outcome)
		res.Processed++
		if err != nil {
			log.Error("enrich: resolve task",
				zap.Int64("task_id", task.ID),
				zap.Error(err),
			)
			res.Err = err
			continue
		}
		r.metrics.item(kind, status)

		switch status {
		case model.TaskDone:
			res.Succeeded++
		case model.TaskSkipped:
			res.Skipped++
		case model.TaskFailed:
			res.Failed++
		default:
			res.Retried++
		}
	}

	log.Info("enrich: cycle complete",
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("retried", res.Retried),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res
}

// finish folds a cycle's result into the runner's status.
func (r *Runner) finish(res CycleResult, start time.Time) {
	now := r.clock.Now()
	result := "ran"
	if res.Err != nil {
		result = "error"
		zap.L().Error("enrich: cycle failed",
			zap.String("workflow", string(r.wf.Kind())),
			zap.Error(res.Err),
		)
	}
	r.metrics.cycle(r.wf.Kind(), result, now.Sub(start))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.LastRun = &now
	r.status.TotalProcessed += res.Processed
	r.status.TotalSucceeded += res.Succeeded
	r.status.TotalFailed += res.Retried + res.Failed
	r.status.TotalSkipped += res.Skipped
	if res.Err != nil {
		r.status.LastError = res.Err.Error()
	}
}

// resolve records outcome, marking the final failure of a task.
func (r *Runner) resolve(ctx context.Context, task model.Task, outcome model.Outcome) (model.TaskStatus, error) {
	if outcome.Kind == model.OutcomeRetry && task.Attempts >= r.cfg.MaxAttempts {
		outcome = model.RetryOrFail(fmt.Errorf("%w (%d/%d): %w", ErrMaxAttempts, task.Attempts, r.cfg.MaxAttempts, outcome.Err))
	}
	status, err := r.store.ResolveTask(ctx, task, outcome, r.cfg.MaxAttempts)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: resolve task %d", task.ID)
	}

	fields := []zap.Field{
		zap.String("workflow", string(task.Kind)),
		zap.Int64("task_id", task.ID),
		zap.String("question_id", task.QuestionID),
		zap.Int("attempts", task.Attempts),
		zap.String("outcome", string(status)),
	}
	switch status {
	case model.TaskDone:
		zap.L().Debug("enrich: task done", fields...)
	case model.TaskSkipped:
		zap.L().Info("enrich: task skipped", append(fields, zap.String("reason", outcome.Reason))...)
	case model.TaskFailed:
		zap.L().Error("enrich: task failed", append(fields, zap.Error(outcome.Err))...)
	default:
		zap.L().Warn("enrich: task will retry", append(fields, zap.Error(outcome.Err))...)
	}
	return status, nil
}

// processItem runs the per-item steps and converts every failure, panics
// included, into an outcome.
func (r *Runner) processItem(ctx context.Context, task model.Task) (outcome model.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("enrich: item panic recovered",
				zap.String("workflow", string(task.Kind)),
				zap.Int64("task_id", task.ID),
				zap.Any("panic", p),
			)
			outcome = model.RetryOrFail(eris.Errorf("panic: %v", p))
		}
	}()

	q, err := r.store.GetQuestion(ctx, task.QuestionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Skip("question not found")
	}
	if err != nil {
		return model.RetryOrFail(eris.Wrap(err, "load question"))
	}
	if ok, reason := r.wf.Eligibility().Check(q); !ok {
		return model.Skip(reason)
	}

	payload, err := r.wf.Payload(q)
	if err != nil {
		return model.RetryOrFail(err)
	}

	kind := r.wf.Kind()
	began := r.clock.Now()
	reply, err := r.infer.Infer(inference.WithWorkflow(ctx, string(kind)), r.wf.SystemPrompt(), payload)
	r.metrics.inference(kind, r.clock.Since(began))
	if err != nil {
		return model.RetryOrFail(tag(ErrInferenceCall, err))
	}

	result, err := r.wf.Evaluate(q, reply)
	if err != nil {
		return model.RetryOrFail(err)
	}
	if result.Confidence < r.cfg.ConfidenceThreshold {
		return model.RetryOrFail(eris.Wrapf(ErrLowConfidence, "confidence %g below threshold %g",
			result.Confidence, r.cfg.ConfidenceThreshold))
	}

	updated, err := r.store.UpdateQuestionField(ctx, q.ID, r.wf.Target(), result.Value)
	if err != nil {
		return model.RetryOrFail(tag(ErrStoreWrite, err))
	}
	if !updated {
		return model.Skip(fmt.Sprintf("%s already populated", r.wf.Target()))
	}
	return model.Done()
}
