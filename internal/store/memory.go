package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

// MemoryStore implements Store in process memory. It backs tests and
// dry runs; nothing survives a restart.
type MemoryStore struct {
	mu         sync.Mutex
	questions  map[string]*model.Question
	byExternal map[string]string
	seq        map[string]int
	tasks      map[int64]*model.Task
	nextTaskID int64
	now        func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		questions:  make(map[string]*model.Question),
		byExternal: make(map[string]string),
		seq:        make(map[string]int),
		tasks:      make(map[int64]*model.Task),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the store's clock.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

// --- Questions ---

func (m *MemoryStore) QuestionExists(_ context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byExternal[externalID]
	return ok, nil
}

func (m *MemoryStore) InsertQuestion(_ context.Context, q *model.Question) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byExternal[q.ExternalID]; ok {
		return false, nil
	}
	if _, ok := m.questions[q.ID]; ok {
		return false, eris.Errorf("memory: duplicate question id %s", q.ID)
	}
	c := q.Clone()
	now := m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.questions[c.ID] = c
	m.byExternal[c.ExternalID] = c.ID
	m.seq[c.ID] = len(m.seq)
	return true, nil
}

func (m *MemoryStore) GetQuestion(_ context.Context, id string) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get question %s", id)
	}
	return q.Clone(), nil
}

func (m *MemoryStore) UpdateQuestionField(_ context.Context, id string, field model.Field, value string) (bool, error) {
	if _, err := writableColumn(field); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok || q.Has(field) {
		return false, nil
	}
	q.Set(field, value)
	q.UpdatedAt = m.now()
	return true, nil
}

// orderedQuestions returns questions by creation time then insertion order.
func (m *MemoryStore) orderedQuestions() []*model.Question {
	out := make([]*model.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out
}

func (m *MemoryStore) SelectEligible(_ context.Context, elig model.Eligibility, limit int) ([]model.Question, error) {
	if _, err := eligibilityPredicate(elig, ""); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Question
	for _, q := range m.orderedQuestions() {
		if len(out) == limit {
			break
		}
		if ok, _ := elig.Check(q); ok {
			out = append(out, *q.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) CountEligible(_ context.Context, elig model.Eligibility) (int, error) {
	if _, err := eligibilityPredicate(elig, ""); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.questions {
		if ok, _ := elig.Check(q); ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeactivateQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: deactivate question %s", id)
	}
	q.Active = false
	q.UpdatedAt = m.now()
	return nil
}

// --- Tasks ---

func (m *MemoryStore) hasTask(questionID string, kind model.TaskKind) bool {
	for _, t := range m.tasks {
		if t.QuestionID == questionID && t.Kind == kind {
			return true
		}
	}
	return false
}

func (m *MemoryStore) enqueueLocked(questionID string, kind model.TaskKind) {
	m.nextTaskID++
	m.tasks[m.nextTaskID] = &model.Task{
		ID:         m.nextTaskID,
		QuestionID: questionID,
		Kind:       kind,
		Status:     model.TaskPending,
		CreatedAt:  m.now(),
	}
}

func (m *MemoryStore) EnqueueTask(_ context.Context, questionID string, kind model.TaskKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[questionID]; !ok {
		return false, eris.Wrapf(ErrNotFound, "memory: enqueue %s for %s", kind, questionID)
	}
	if m.hasTask(questionID, kind) {
		return false, nil
	}
	m.enqueueLocked(questionID, kind)
	return true, nil
}

func (m *MemoryStore) PopulateTasks(_ context.Context, kind model.TaskKind, elig model.Eligibility, limit int) (int, error) {
	if _, err := eligibilityPredicate(elig, ""); err != nil {
		return 0, err
	}
	limit = normalizeLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.orderedQuestions() {
		if n == limit {
			break
		}
		if ok, _ := elig.Check(q); !ok || m.hasTask(q.ID, kind) {
			continue
		}
		m.enqueueLocked(q.ID, kind)
		n++
	}
	return n, nil
}

// orderedTasks returns tasks by creation time then id.
func (m *MemoryStore) orderedTasks() []*model.Task {
	out := make([]*model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) ClaimTasks(_ context.Context, kind model.TaskKind, limit, maxAttempts int) ([]model.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var claimed []model.Task
	for _, t := range m.orderedTasks() {
		if len(claimed) == limit {
			break
		}
		if t.Kind != kind || t.Status != model.TaskPending || t.Attempts >= maxAttempts {
			continue
		}
		t.Status = model.TaskProcessing
		t.Attempts++
		claimedAt := now
		t.ClaimedAt = &claimedAt
		claimed = append(claimed, *t)
	}
	return claimed, nil
}

func (m *MemoryStore) ResolveTask(_ context.Context, task model.Task, outcome model.Outcome, maxAttempts int) (model.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[task.ID]
	if !ok || t.Status != model.TaskProcessing {
		return "", eris.Wrapf(ErrNotFound, "memory: resolve task %d: not processing", task.ID)
	}
	status, lastErr, processedAt := resolution(*t, outcome, maxAttempts, m.now())
	t.Status = status
	t.LastError = lastErr
	t.ProcessedAt = processedAt
	return status, nil
}

func (m *MemoryStore) RequeueStale(_ context.Context, kind model.TaskKind, cutoff time.Time, maxAttempts int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, t := range m.tasks {
		if t.Kind != kind || t.Status != model.TaskProcessing || t.ClaimedAt == nil || !t.ClaimedAt.Before(cutoff) {
			continue
		}
		msg := staleClaimError
		t.LastError = &msg
		if t.Attempts >= maxAttempts {
			t.Status = model.TaskFailed
			processedAt := now
			t.ProcessedAt = &processedAt
		} else {
			t.Status = model.TaskPending
			t.ProcessedAt = nil
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := normalizeLimit(filter.Limit)
	skipped := 0
	var out []model.Task
	for _, t := range m.orderedTasks() {
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.QuestionID != "" && t.QuestionID != filter.QuestionID {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *MemoryStore) CountTasks(_ context.Context, kind model.TaskKind) (map[model.TaskStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.TaskStatus]int)
	for _, t := range m.tasks {
		if kind != "" && t.Kind != kind {
			continue
		}
		counts[t.Status]++
	}
	return counts, nil
}
