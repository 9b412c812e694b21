package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/question-bank/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS questions (
	id                   TEXT PRIMARY KEY,
	external_id          TEXT NOT NULL UNIQUE,
	subject              TEXT,
	topic                TEXT NOT NULL DEFAULT '',
	source               TEXT NOT NULL DEFAULT '',
	statement            TEXT NOT NULL,
	options              TEXT NOT NULL DEFAULT '[]',
	answer_key           TEXT,
	commentary           TEXT,
	statement_formatted  TEXT,
	commentary_formatted TEXT,
	review               TEXT,
	images               TEXT NOT NULL DEFAULT '[]',
	active               INTEGER NOT NULL DEFAULT 1,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at, id);

CREATE TABLE IF NOT EXISTS enrichment_tasks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id  TEXT NOT NULL REFERENCES questions(id),
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	attempts     INTEGER NOT NULL DEFAULT 0 CHECK (attempts >= 0),
	last_error   TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	claimed_at   DATETIME,
	processed_at DATETIME,
	UNIQUE (question_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_tasks_claim ON enrichment_tasks(kind, status, created_at, id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Questions ---

func (s *SQLiteStore) QuestionExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE external_id = ?)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: question exists %s", externalID)
	}
	return exists, nil
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *model.Question) (bool, error) {
	options, images, err := marshalQuestionJSON(q)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert question")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, external_id, subject, topic, source, statement, options,
			answer_key, commentary, images, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING`,
		q.ID, q.ExternalID, q.Subject, q.Topic, q.Source, q.Statement, string(options),
		q.AnswerKey, q.Commentary, string(images), q.Active, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert question %s", q.ExternalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	query, args, err := sq.Select(questionColumns...).From("questions").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get question")
	}

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get question %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get question %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) UpdateQuestionField(ctx context.Context, id string, field model.Field, value string) (bool, error) {
	col, err := writableColumn(field)
	if err != nil {
		return false, err
	}

	query, args, err := sq.Update("questions").
		Set(col, value).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{sq.Eq{col: nil}, sq.Eq{col: ""}}).
		ToSql()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: build update field")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update %s on %s", col, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) SelectEligible(ctx context.Context, elig model.Eligibility, limit int) ([]model.Question, error) {
	pred, err := eligibilityPredicate(elig, "")
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Select(questionColumns...).From("questions").
		Where(pred).
		OrderBy("created_at", "id").
		Limit(uint64(normalizeLimit(limit))).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build select eligible")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select eligible")
	}
	defer rows.Close()

	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan eligible")
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate eligible")
}

func (s *SQLiteStore) CountEligible(ctx context.Context, elig model.Eligibility) (int, error) {
	pred, err := eligibilityPredicate(elig, "")
	if err != nil {
		return 0, err
	}

	query, args, err := sq.Select("COUNT(*)").From("questions").Where(pred).ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build count eligible")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count eligible")
	}
	return n, nil
}

func (s *SQLiteStore) DeactivateQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate question %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: deactivate question %s", id)
	}
	return nil
}

// --- Tasks ---

func (s *SQLiteStore) EnqueueTask(ctx context.Context, questionID string, kind model.TaskKind) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO enrichment_tasks (question_id, kind, status, attempts, created_at)
		VALUES (?, ?, 'pending', 0, ?)`,
		questionID, string(kind), time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: enqueue %s for %s", kind, questionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) PopulateTasks(ctx context.Context, kind model.TaskKind, elig model.Eligibility, limit int) (int, error) {
	pred, err := eligibilityPredicate(elig, "q.")
	if err != nil {
		return 0, err
	}

	sel := sq.Select().
		Column("q.id").
		Column(sq.Expr("?", string(kind))).
		Column("'pending'").
		Column("0").
		Column(sq.Expr("?", time.Now().UTC())).
		From("questions q").
		Where(pred).
		Where(sq.Expr(`NOT EXISTS (SELECT 1 FROM enrichment_tasks t WHERE t.question_id = q.id AND t.kind = ?)`, string(kind))).
		OrderBy("q.created_at", "q.id").
		Limit(uint64(normalizeLimit(limit)))

	query, args, err := sq.Insert("enrichment_tasks").
		Options("OR IGNORE").
		Columns("question_id", "kind", "status", "attempts", "created_at").
		Select(sel).
		ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build populate")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: populate %s", kind)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

// ClaimTasks selects and marks tasks inside one transaction. SQLite
// serializes writers so no row locking is needed.
func (s *SQLiteStore) ClaimTasks(ctx context.Context, kind model.TaskKind, limit, maxAttempts int) ([]model.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := sq.Select(taskColumns...).From("enrichment_tasks").
		Where(sq.Eq{"kind": string(kind), "status": string(model.TaskPending)}).
		Where(sq.Lt{"attempts": maxAttempts}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build claim")
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select claimable")
	}
	var claimed []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan claimable")
		}
		claimed = append(claimed, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate claimable")
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(claimed))
	for i, t := range claimed {
		ids[i] = t.ID
	}
	now := time.Now().UTC()
	update, uargs, err := sq.Update("enrichment_tasks").
		Set("status", string(model.TaskProcessing)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("claimed_at", now).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build mark processing")
	}
	if _, err := tx.ExecContext(ctx, update, uargs...); err != nil {
		return nil, eris.Wrap(err, "sqlite: mark processing")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}

	for i := range claimed {
		claimed[i].Status = model.TaskProcessing
		claimed[i].Attempts++
		claimed[i].ClaimedAt = &now
	}
	return claimed, nil
}

func (s *SQLiteStore) ResolveTask(ctx context.Context, task model.Task, outcome model.Outcome, maxAttempts int) (model.TaskStatus, error) {
	status, lastErr, processedAt := resolution(task, outcome, maxAttempts, time.Now().UTC())

	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_tasks
		SET status = ?, last_error = ?, processed_at = ?
		WHERE id = ? AND status = 'processing'`,
		string(status), lastErr, processedAt, task.ID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: resolve task %d", task.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return "", eris.Wrapf(ErrNotFound, "sqlite: resolve task %d: not processing", task.ID)
	}
	return status, nil
}

func (s *SQLiteStore) RequeueStale(ctx context.Context, kind model.TaskKind, cutoff time.Time, maxAttempts int) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_tasks
		SET status = CASE WHEN attempts >= ? THEN 'failed' ELSE 'pending' END,
			processed_at = CASE WHEN attempts >= ? THEN ? ELSE NULL END,
			last_error = ?
		WHERE kind = ? AND status = 'processing' AND claimed_at < ?`,
		maxAttempts, maxAttempts, now, staleClaimError, string(kind), cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: requeue stale %s", kind)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	b := sq.Select(taskColumns...).From("enrichment_tasks")
	if filter.Kind != "" {
		b = b.Where(sq.Eq{"kind": string(filter.Kind)})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.QuestionID != "" {
		b = b.Where(sq.Eq{"question_id": filter.QuestionID})
	}
	b = b.OrderBy("created_at", "id").Limit(uint64(normalizeLimit(filter.Limit)))
	if filter.Offset > 0 {
		b = b.Offset(uint64(filter.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list tasks")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: iterate tasks")
}

func (s *SQLiteStore) CountTasks(ctx context.Context, kind model.TaskKind) (map[model.TaskStatus]int, error) {
	b := sq.Select("status", "COUNT(*)").From("enrichment_tasks").GroupBy("status")
	if kind != "" {
		b = b.Where(sq.Eq{"kind": string(kind)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build count tasks")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count tasks")
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task count")
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate task counts")
}
