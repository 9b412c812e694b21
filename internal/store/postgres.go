package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/db"
	"github.com/sells-group/question-bank/internal/model"
)

// psql builds Postgres statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and returns a store over the pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS questions (
	id                   TEXT PRIMARY KEY,
	external_id          TEXT NOT NULL UNIQUE,
	subject              TEXT,
	topic                TEXT NOT NULL DEFAULT '',
	source               TEXT NOT NULL DEFAULT '',
	statement            TEXT NOT NULL,
	options              JSONB NOT NULL DEFAULT '[]',
	answer_key           TEXT,
	commentary           TEXT,
	statement_formatted  TEXT,
	commentary_formatted TEXT,
	review               TEXT,
	images               JSONB NOT NULL DEFAULT '[]',
	active               BOOLEAN NOT NULL DEFAULT true,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at, id);

CREATE TABLE IF NOT EXISTS enrichment_tasks (
	id           BIGSERIAL PRIMARY KEY,
	question_id  TEXT NOT NULL REFERENCES questions(id),
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	attempts     INTEGER NOT NULL DEFAULT 0 CHECK (attempts >= 0),
	last_error   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	claimed_at   TIMESTAMPTZ,
	processed_at TIMESTAMPTZ,
	UNIQUE (question_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_tasks_claim ON enrichment_tasks(kind, status, created_at, id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Questions ---

func (s *PostgresStore) QuestionExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: question exists %s", externalID)
	}
	return exists, nil
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, q *model.Question) (bool, error) {
	options, images, err := marshalQuestionJSON(q)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert question")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO questions (id, external_id, subject, topic, source, statement, options,
			answer_key, commentary, images, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (external_id) DO NOTHING`,
		q.ID, q.ExternalID, q.Subject, q.Topic, q.Source, q.Statement, options,
		q.AnswerKey, q.Commentary, images, q.Active,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert question %s", q.ExternalID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	query, args, err := psql.Select(questionColumns...).From("questions").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get question")
	}

	q, err := scanQuestion(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get question %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get question %s", id)
	}
	return q, nil
}

func (s *PostgresStore) UpdateQuestionField(ctx context.Context, id string, field model.Field, value string) (bool, error) {
	col, err := writableColumn(field)
	if err != nil {
		return false, err
	}

	query, args, err := psql.Update("questions").
		Set(col, value).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{sq.Eq{col: nil}, sq.Eq{col: ""}}).
		ToSql()
	if err != nil {
		return false, eris.Wrap(err, "postgres: build update field")
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update %s on %s", col, id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SelectEligible(ctx context.Context, elig model.Eligibility, limit int) ([]model.Question, error) {
	pred, err := eligibilityPredicate(elig, "")
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Select(questionColumns...).From("questions").
		Where(pred).
		OrderBy("created_at", "id").
		Limit(uint64(normalizeLimit(limit))).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build select eligible")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select eligible")
	}
	defer rows.Close()

	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan eligible")
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate eligible")
}

func (s *PostgresStore) CountEligible(ctx context.Context, elig model.Eligibility) (int, error) {
	pred, err := eligibilityPredicate(elig, "")
	if err != nil {
		return 0, err
	}

	query, args, err := psql.Select("COUNT(*)").From("questions").Where(pred).ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "postgres: build count eligible")
	}

	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count eligible")
	}
	return n, nil
}

func (s *PostgresStore) DeactivateQuestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET active = false, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate question %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: deactivate question %s", id)
	}
	return nil
}

// --- Tasks ---

func (s *PostgresStore) EnqueueTask(ctx context.Context, questionID string, kind model.TaskKind) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO enrichment_tasks (question_id, kind, status, attempts, created_at)
		VALUES ($1, $2, 'pending', 0, now())
		ON CONFLICT (question_id, kind) DO NOTHING`,
		questionID, string(kind),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: enqueue %s for %s", kind, questionID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) PopulateTasks(ctx context.Context, kind model.TaskKind, elig model.Eligibility, limit int) (int, error) {
	pred, err := eligibilityPredicate(elig, "q.")
	if err != nil {
		return 0, err
	}

	sel := sq.Select().
		Column("q.id").
		Column(sq.Expr("?::text", string(kind))).
		Column("'pending'").
		Column("0").
		Column("now()").
		From("questions q").
		Where(pred).
		Where(sq.Expr(`NOT EXISTS (SELECT 1 FROM enrichment_tasks t WHERE t.question_id = q.id AND t.kind = ?)`, string(kind))).
		OrderBy("q.created_at", "q.id").
		Limit(uint64(normalizeLimit(limit)))

	query, args, err := psql.Insert("enrichment_tasks").
		Columns("question_id", "kind", "status", "attempts", "created_at").
		Select(sel).
		Suffix("ON CONFLICT (question_id, kind) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "postgres: build populate")
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: populate %s", kind)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ClaimTasks(ctx context.Context, kind model.TaskKind, limit, maxAttempts int) ([]model.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []model.Task
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		query, args, err := psql.Select(taskColumns...).From("enrichment_tasks").
			Where(sq.Eq{"kind": string(kind), "status": string(model.TaskPending)}).
			Where(sq.Lt{"attempts": maxAttempts}).
			OrderBy("created_at", "id").
			Limit(uint64(limit)).
			Suffix("FOR UPDATE SKIP LOCKED").
			ToSql()
		if err != nil {
			return eris.Wrap(err, "postgres: build claim")
		}

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return eris.Wrap(err, "postgres: select claimable")
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return eris.Wrap(err, "postgres: scan claimable")
			}
			claimed = append(claimed, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "postgres: iterate claimable")
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]int64, len(claimed))
		for i, t := range claimed {
			ids[i] = t.ID
		}
		_, err = tx.Exec(ctx, `
			UPDATE enrichment_tasks
			SET status = 'processing', attempts = attempts + 1, claimed_at = now()
			WHERE id = ANY($1)`,
			ids,
		)
		return eris.Wrap(err, "postgres: mark processing")
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range claimed {
		claimed[i].Status = model.TaskProcessing
		claimed[i].Attempts++
		claimed[i].ClaimedAt = &now
	}
	return claimed, nil
}

func (s *PostgresStore) ResolveTask(ctx context.Context, task model.Task, outcome model.Outcome, maxAttempts int) (model.TaskStatus, error) {
	status, lastErr, processedAt := resolution(task, outcome, maxAttempts, time.Now().UTC())

	tag, err := s.pool.Exec(ctx, `
		UPDATE enrichment_tasks
		SET status = $1, last_error = $2, processed_at = $3
		WHERE id = $4 AND status = 'processing'`,
		string(status), lastErr, processedAt, task.ID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: resolve task %d", task.ID)
	}
	if tag.RowsAffected() == 0 {
		return "", eris.Wrapf(ErrNotFound, "postgres: resolve task %d: not processing", task.ID)
	}
	return status, nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, kind model.TaskKind, cutoff time.Time, maxAttempts int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE enrichment_tasks
		SET status = CASE WHEN attempts >= $1 THEN 'failed' ELSE 'pending' END,
			processed_at = CASE WHEN attempts >= $1 THEN now() ELSE NULL END,
			last_error = $2
		WHERE kind = $3 AND status = 'processing' AND claimed_at < $4`,
		maxAttempts, staleClaimError, string(kind), cutoff,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: requeue stale %s", kind)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	b := psql.Select(taskColumns...).From("enrichment_tasks")
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
		return nil, eris.Wrap(err, "postgres: build list tasks")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: iterate tasks")
}

func (s *PostgresStore) CountTasks(ctx context.Context, kind model.TaskKind) (map[model.TaskStatus]int, error) {
	b := psql.Select("status", "COUNT(*)").From("enrichment_tasks").GroupBy("status")
	if kind != "" {
		b = b.Where(sq.Eq{"kind": string(kind)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build count tasks")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count tasks")
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task count")
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate task counts")
}
