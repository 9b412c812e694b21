package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/question-bank/internal/ingest"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/monitoring"
)

func TestFormatIngestResult(t *testing.T) {
	var buf bytes.Buffer
	formatIngestResult(&buf, ingest.Result{
		Inserted: 3, Skipped: 1, Rejected: 1, Errors: 1,
		Rejections: []ingest.Rejection{{Index: 2, ExternalID: "ext-a", Reasons: []string{"statement too short (5 < 10 characters)"}}},
		Failures:   []ingest.Failure{{Index: 4, ExternalID: "ext-b", Error: "connection reset"}},
	})

	out := buf.String()
	assert.Contains(t, out, "Inserted:  3")
	assert.Contains(t, out, "#2 ext-a")
	assert.Contains(t, out, "- statement too short")
	assert.Contains(t, out, "#4 ext-b: connection reset")
}

func TestFormatIngestResult_Clean(t *testing.T) {
	var buf bytes.Buffer
	formatIngestResult(&buf, ingest.Result{Inserted: 2})
	assert.NotContains(t, buf.String(), "Rejected records")
	assert.NotContains(t, buf.String(), "Failed records")
}

func TestFormatSnapshot(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.Snapshot{Workflows: []monitoring.WorkflowSnapshot{{
		Workflow:    model.KindAnswerExtraction,
		Queue:       map[model.TaskStatus]int{model.TaskPending: 12, model.TaskDone: 3, model.TaskFailed: 1},
		FailureRate: 0.25,
	}}})

	out := buf.String()
	assert.Contains(t, out, "WORKFLOW")
	assert.Contains(t, out, "answer_extraction")
	assert.Contains(t, out, "25.0%")
}

func TestFormatTasks(t *testing.T) {
	lastErr := "low confidence: 0.42 below threshold 0.70 for answer key extracted from a very long commentary"
	var buf bytes.Buffer
	formatTasks(&buf, []model.Task{{
		ID:         41,
		QuestionID: "0c9d4c1e-6c1f-4b7c-9b44-1f1f6a2e8b10",
		Kind:       model.KindAnswerExtraction,
		Status:     model.TaskPending,
		Attempts:   1,
		LastError:  &lastErr,
		CreatedAt:  time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "0c9d4c1e ")
	assert.Contains(t, out, "2026-10-18 08:00")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "very long commentary")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "curto", truncate("curto", 10))
	assert.Equal(t, "ação...", truncate("ação direta", 7))
	assert.Equal(t, "abcdefgh", truncateID("abcdefgh-1234"))
	assert.Equal(t, "q-1", truncateID("q-1"))
}
