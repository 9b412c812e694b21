package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/question-bank/internal/inference"
	"github.com/sells-group/question-bank/internal/ingest"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/scheduler"
	"github.com/sells-group/question-bank/internal/store"
)

func TestNewEnrichEnv_SkipsDisabledWorkflows(t *testing.T) {
	c := testConfig(t)
	w := c.Workflows[string(model.KindFullReview)]
	w.Enabled = false
	c.Workflows[string(model.KindFullReview)] = w

	env, err := newEnrichEnv(c, store.NewMemory(), inference.NewFake(""), nil, nil)
	require.NoError(t, err)

	runners := env.Set.Runners()
	require.Len(t, runners, len(model.AllKinds)-1)
	_, ok := env.Set.Get(model.KindFullReview)
	assert.False(t, ok)
	assert.Equal(t, model.KindAnswerExtraction, runners[0].Kind())
}

func TestNewEnrichEnv_ExplicitKindRunsWhenDisabled(t *testing.T) {
	c := testConfig(t)
	w := c.Workflows[string(model.KindFullReview)]
	w.Enabled = false
	c.Workflows[string(model.KindFullReview)] = w

	env, err := newEnrichEnv(c, store.NewMemory(), inference.NewFake(""), nil, nil, model.KindFullReview)
	require.NoError(t, err)
	require.Len(t, env.Set.Runners(), 1)
	assert.Equal(t, model.KindFullReview, env.Set.Runners()[0].Kind())
}

func TestRunnerConfig(t *testing.T) {
	c := testConfig(t)
	w := c.Workflow(model.KindFullReview)

	rc := runnerConfig(c, w)
	assert.Equal(t, 10, rc.BatchSize)
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.InDelta(t, 0.7, rc.ConfidenceThreshold, 0.0001)
	assert.Equal(t, 30*time.Minute, rc.StaleAfter)
	assert.True(t, rc.Populate)
	assert.Equal(t, 200, rc.PopulateLimit)
}

func TestSchedule_RegistersStaggeredJobs(t *testing.T) {
	c := testConfig(t)
	env, err := newEnrichEnv(c, store.NewMemory(), inference.NewFake(""), nil, nil)
	require.NoError(t, err)

	s := scheduler.New(clockwork.NewFakeClock())
	require.NoError(t, env.schedule(c, s))

	jobs := s.Jobs()
	require.Len(t, jobs, len(model.AllKinds))
	assert.Equal(t, "answer_extraction", jobs[0].Name)
	assert.Equal(t, 30*time.Second, jobs[0].InitialDelay)
	assert.Equal(t, 5*time.Minute, jobs[0].Interval)
	assert.Equal(t, "full_review", jobs[4].Name)
	assert.Equal(t, 150*time.Second, jobs[4].InitialDelay)
}

func TestCycleJob_IngestPopulateEnrich(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()
	st := store.NewMemory()

	res, err := ingest.New(st).Ingest(ctx, []model.RawRecord{{
		ExternalID: "ext-1",
		Statement:  "Segundo a Constituição, compete ao STF julgar a ADI?",
		Options:    []model.Option{{Label: "A", Text: "Sim, originariamente"}, {Label: "B", Text: "Não, compete ao STJ"}},
		Commentary: "A alternativa correta é a letra A, conforme o art. 102.",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	reg := newRegistry()
	fake := inference.NewFake(`{"gabarito":"A","confianca":0.92}`)
	env, err := newEnrichEnv(c, st, fake, clockwork.NewFakeClock(), reg, model.KindAnswerExtraction)
	require.NoError(t, err)

	runner, ok := env.Set.Get(model.KindAnswerExtraction)
	require.True(t, ok)
	cycleJob(runner)(ctx)

	counts, err := st.CountTasks(ctx, model.KindAnswerExtraction)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.TaskDone])

	status := runner.Status()
	assert.Equal(t, 1, status.TotalSucceeded)
	assert.Len(t, fake.Calls(), 1)
	n, err := testutil.GatherAndCount(reg, "qbank_enrich_items_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)

	mem, err := openStore(ctx, c.Store)
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "qbank.db")
	lite, err := openStore(ctx, c.Store)
	require.NoError(t, err)
	require.NoError(t, lite.Close())

	c.Store.Driver = "mysql"
	_, err = openStore(ctx, c.Store)
	assert.Error(t, err)
}
