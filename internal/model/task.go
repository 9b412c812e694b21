package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// TaskKind identifies an enrichment workflow.
type TaskKind string

const (
	KindAnswerExtraction      TaskKind = "answer_extraction"
	KindSubjectClassification TaskKind = "subject_classification"
	KindCommentaryFormatting  TaskKind = "commentary_formatting"
	KindStatementFormatting   TaskKind = "statement_formatting"
	KindFullReview            TaskKind = "full_review"
)

// AllKinds lists every workflow kind in scheduling order.
var AllKinds = []TaskKind{
	KindAnswerExtraction,
	KindSubjectClassification,
	KindStatementFormatting,
	KindCommentaryFormatting,
	KindFullReview,
}

// ParseTaskKind validates a kind name.
func ParseTaskKind(s string) (TaskKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", eris.Errorf("unknown task kind %q", s)
}

// TaskStatus is the state of an enrichment task.
//
//	pending → processing → done | skipped | failed | pending (retry)
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// Terminal reports whether a task in this status is never processed again.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskSkipped
}

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []TaskStatus{TaskPending, TaskProcessing, TaskDone, TaskFailed, TaskSkipped}

// ParseTaskStatus validates a status name.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("unknown task status %q", s)
}

// MaxErrorLength bounds the error text stored on a task row.
const MaxErrorLength = 500

// Task is a queued enrichment of one question by one workflow.
type Task struct {
	ID          int64      `json:"id"`
	QuestionID  string     `json:"question_id"`
	Kind        TaskKind   `json:"kind"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// OutcomeKind enumerates how a processed task is resolved.
type OutcomeKind int

const (
	OutcomeDone OutcomeKind = iota
	OutcomeRetry
	OutcomeSkip
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDone:
		return "done"
	case OutcomeRetry:
		return "retry_or_fail"
	case OutcomeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Outcome is the resolution of a claimed task.
type Outcome struct {
	Kind   OutcomeKind
	Err    error
	Reason string
}

// Done resolves a task after its result was written to the question.
func Done() Outcome { return Outcome{Kind: OutcomeDone} }

// RetryOrFail returns the task to pending, or fails it once attempts are
// exhausted.
func RetryOrFail(err error) Outcome { return Outcome{Kind: OutcomeRetry, Err: err} }

// Skip resolves a task as a no-op, e.g. when the target field is already set.
func Skip(reason string) Outcome { return Outcome{Kind: OutcomeSkip, Reason: reason} }

// Message returns the text recorded as the task's last error, truncated to
// MaxErrorLength. Done outcomes have no message.
func (o Outcome) Message() string {
	var msg string
	switch o.Kind {
	case OutcomeRetry:
		if o.Err != nil {
			msg = o.Err.Error()
		} else {
			msg = "unknown error"
		}
	case OutcomeSkip:
		msg = o.Reason
	}
	return Truncate(msg, MaxErrorLength)
}

// NextStatus returns the status a task moves to for this outcome given its
// attempts after the current claim.
func (o Outcome) NextStatus(attempts, maxAttempts int) TaskStatus {
	switch o.Kind {
	case OutcomeDone:
		return TaskDone
	case OutcomeSkip:
		return TaskSkipped
	default:
		if attempts >= maxAttempts {
			return TaskFailed
		}
		return TaskPending
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
