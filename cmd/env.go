package main

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/config"
	"github.com/sells-group/question-bank/internal/enrich"
	"github.com/sells-group/question-bank/internal/guard"
	"github.com/sells-group/question-bank/internal/inference"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/ratelimit"
	"github.com/sells-group/question-bank/internal/resilience"
	"github.com/sells-group/question-bank/internal/scheduler"
	"github.com/sells-group/question-bank/internal/store"
	"github.com/sells-group/question-bank/pkg/anthropic"
)

// enrichEnv wires the runners of every enabled workflow around one store
// and one inferrer.
type enrichEnv struct {
	Store    store.Store
	Set      *enrich.Set
	Guard    *guard.Guard
	Registry *prometheus.Registry
	Clock    clockwork.Clock
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newInferrer(c *config.Config) inference.Inferrer {
	client := anthropic.NewClient(c.Anthropic.Key)
	return inference.NewAnthropic(client, inference.AnthropicConfig{
		Model:     c.Anthropic.Model,
		MaxTokens: c.Anthropic.MaxTokens,
		Timeout:   time.Duration(c.Anthropic.TimeoutSecs) * time.Second,
		Retry: resilience.FromRetryConfig(
			c.Inference.RetryAttempts,
			c.Inference.InitialBackoffMs,
			c.Inference.MaxBackoffMs,
			2.0, 0.25,
		),
	})
}

// runnerConfig maps queue and workflow settings onto enrich.Config.
func runnerConfig(c *config.Config, w config.WorkflowConfig) enrich.Config {
	return enrich.Config{
		BatchSize:           c.Queue.BatchSize,
		MaxAttempts:         c.Queue.MaxAttempts,
		ConfidenceThreshold: c.Queue.ConfidenceThreshold,
		StaleAfter:          time.Duration(c.Queue.StaleAfterMins) * time.Minute,
		Populate:            w.Populate,
		PopulateLimit:       w.PopulateLimit,
	}
}

// newEnrichEnv builds runners for kinds, or for every enabled workflow when
// kinds is empty. An explicitly requested kind runs even if disabled.
func newEnrichEnv(c *config.Config, st store.Store, inf inference.Inferrer, clock clockwork.Clock, reg *prometheus.Registry, kinds ...model.TaskKind) (*enrichEnv, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	explicit := len(kinds) > 0
	if !explicit {
		kinds = model.AllKinds
	}

	var shared = ratelimit.NewShared(c.Inference.SharedRPS)
	var metrics *enrich.Metrics
	if reg != nil {
		metrics = enrich.NewMetrics(reg)
	}
	g := guard.New()

	var runners []*enrich.Runner
	for _, kind := range kinds {
		w := c.Workflow(kind)
		if !explicit && !w.Enabled {
			zap.L().Info("workflow disabled", zap.String("workflow", string(kind)))
			continue
		}

		wf, err := enrich.NewWorkflow(kind, enrich.Options{
			SubjectLabels: w.Labels,
			MinRetention:  w.MinRetention,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "build workflow %s", kind)
		}

		runners = append(runners, enrich.NewRunner(wf, st, inf,
			ratelimit.New(w.ItemDelay(), shared, clock),
			runnerConfig(c, w),
			enrich.WithClock(clock),
			enrich.WithGuard(g),
			enrich.WithMetrics(metrics),
		))
	}

	return &enrichEnv{Store: st, Set: enrich.NewSet(runners...), Guard: g, Registry: reg, Clock: clock}, nil
}

// schedule registers one job per runner on the workflow's own cadence.
func (e *enrichEnv) schedule(c *config.Config, s *scheduler.Scheduler) error {
	for _, r := range e.Set.Runners() {
		w := c.Workflow(r.Kind())
		if err := s.Add(scheduler.Job{
			Name:         string(r.Kind()),
			InitialDelay: w.InitialDelay(),
			Interval:     w.Interval(),
			Run:          cycleJob(r),
		}); err != nil {
			return err
		}
	}
	return nil
}
