// Package scheduler fires each registered job after its own initial delay
// and then on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is a recurring unit of work. Run must make overlapping invocations
// safe on its own; the scheduler fires on every tick regardless of whether
// the previous run has returned.
type Job struct {
	Name         string
	InitialDelay time.Duration
	Interval     time.Duration
	Run          func(ctx context.Context)
}

// Scheduler drives a set of jobs on an injectable clock.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	started bool

	loops sync.WaitGroup
	runs  sync.WaitGroup
}

// New creates a Scheduler. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock}
}

// Add registers a job. Jobs cannot be added after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return eris.New("scheduler: job name is required")
	}
	if job.Interval <= 0 {
		return eris.Errorf("scheduler: job %s: interval must be positive", job.Name)
	}
	if job.InitialDelay < 0 {
		return eris.Errorf("scheduler: job %s: initial delay must not be negative", job.Name)
	}
	if job.Run == nil {
		return eris.Errorf("scheduler: job %s: run func is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return eris.Errorf("scheduler: cannot add %s after start", job.Name)
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return eris.Errorf("scheduler: duplicate job %s", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.jobs...)
}

// Start launches one timing loop per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return eris.New("scheduler: already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		zap.L().Info("scheduler: job registered",
			zap.String("job", job.Name),
			zap.Duration("initial_delay", job.InitialDelay),
			zap.Duration("interval", job.Interval),
		)
		s.loops.Add(1)
		go s.loop(ctx, job)
	}
	return nil
}

// Stop ends every timing loop and waits for runs already in flight to
// return. Runs are not cancelled; a cycle that has started completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.loops.Wait()
	s.runs.Wait()
	zap.L().Info("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.loops.Done()

	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(job.InitialDelay):
	}

	for {
		s.fire(ctx, job)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(job.Interval):
		}
	}
}

// fire runs the job in its own goroutine. The run context survives Stop so
// a cycle in progress is never cut short.
func (s *Scheduler) fire(ctx context.Context, job Job) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("scheduler: job panicked",
					zap.String("job", job.Name),
					zap.Error(fmt.Errorf("%v", r)),
				)
			}
		}()
		job.Run(context.WithoutCancel(ctx))
	}()
}
