package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/question-bank/internal/config"
	"github.com/sells-group/question-bank/internal/model"
)

func failingCounter() *fakeCounter {
	return &fakeCounter{counts: map[model.TaskKind]map[model.TaskStatus]int{
		model.KindSubjectClassification: {model.TaskDone: 5, model.TaskFailed: 30},
	}}
}

func TestChecker_RunAlertsOnTick(t *testing.T) {
	received := make(chan Alert, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err == nil {
			received <- alert
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailedThreshold: 25, CheckIntervalSecs: 60}
	clock := clockwork.NewFakeClock()
	checker := NewChecker(NewCollector(failingCounter(), nil, clock), NewAlerter(cfg), cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case alert := <-received:
		assert.Equal(t, AlertFailedTasks, alert.Type)
		assert.Equal(t, model.KindSubjectClassification, alert.Workflow)
	case <-time.After(5 * time.Second):
		t.Fatal("no alert delivered after one tick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckWithoutWebhook(t *testing.T) {
	cfg := config.MonitoringConfig{FailedThreshold: 25, FailureRateThreshold: 0.5}
	checker := NewChecker(NewCollector(failingCounter(), nil, nil), NewAlerter(cfg), cfg, nil)

	alerts := checker.Check(context.Background())
	assert.Len(t, alerts, 2)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{FailedThreshold: 1}
	checker := NewChecker(NewCollector(&fakeCounter{err: assert.AnError}, nil, nil), NewAlerter(cfg), cfg, nil)

	assert.Nil(t, checker.Check(context.Background()))
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeCounter{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{}, nil)
	assert.Equal(t, 5*time.Minute, checker.Interval())

	// Start and immediately cancel to verify it doesn't block.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
