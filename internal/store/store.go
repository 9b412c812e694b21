// Package store persists canonical questions and their enrichment tasks.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

// ErrNotFound is returned when a question or task does not exist.
var ErrNotFound = eris.New("store: not found")

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Kind       model.TaskKind   `json:"kind,omitempty"`
	Status     model.TaskStatus `json:"status,omitempty"`
	QuestionID string           `json:"question_id,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// DefaultListLimit caps ListTasks when no limit is given.
const DefaultListLimit = 100

// Store defines the persistence interface for ingestion and enrichment.
type Store interface {
	// Questions
	QuestionExists(ctx context.Context, externalID string) (bool, error)
	// InsertQuestion stores q unless a question with the same external id
	// exists. It reports whether a row was inserted and never overwrites.
	InsertQuestion(ctx context.Context, q *model.Question) (bool, error)
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	// UpdateQuestionField sets a writable field only while it is still
	// empty. It reports whether the row changed.
	UpdateQuestionField(ctx context.Context, id string, field model.Field, value string) (bool, error)
	SelectEligible(ctx context.Context, elig model.Eligibility, limit int) ([]model.Question, error)
	CountEligible(ctx context.Context, elig model.Eligibility) (int, error)
	DeactivateQuestion(ctx context.Context, id string) error

	// Tasks
	EnqueueTask(ctx context.Context, questionID string, kind model.TaskKind) (bool, error)
	// PopulateTasks enqueues a pending task for up to limit eligible
	// questions that have no task of this kind yet.
	PopulateTasks(ctx context.Context, kind model.TaskKind, elig model.Eligibility, limit int) (int, error)
	// ClaimTasks atomically moves up to limit pending tasks with
	// attempts < maxAttempts to processing, oldest first, incrementing
	// attempts by one. The returned tasks reflect the claim.
	ClaimTasks(ctx context.Context, kind model.TaskKind, limit, maxAttempts int) ([]model.Task, error)
	// ResolveTask records the outcome of a claimed task and returns the
	// status it moved to.
	ResolveTask(ctx context.Context, task model.Task, outcome model.Outcome, maxAttempts int) (model.TaskStatus, error)
	// RequeueStale releases processing tasks claimed before cutoff.
	RequeueStale(ctx context.Context, kind model.TaskKind, cutoff time.Time, maxAttempts int) (int, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	CountTasks(ctx context.Context, kind model.TaskKind) (map[model.TaskStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// staleClaimError is recorded on tasks released by RequeueStale.
const staleClaimError = "claim expired before resolution"

// resolution computes the column values written by ResolveTask.
func resolution(task model.Task, outcome model.Outcome, maxAttempts int, now time.Time) (model.TaskStatus, *string, *time.Time) {
	status := outcome.NextStatus(task.Attempts, maxAttempts)

	var lastErr *string
	if msg := outcome.Message(); msg != "" {
		lastErr = &msg
	}

	var processedAt *time.Time
	if status.Terminal() {
		processedAt = &now
	}
	return status, lastErr, processedAt
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
