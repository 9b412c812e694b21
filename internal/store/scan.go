package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

// taskColumns is the column list shared by every task SELECT.
var taskColumns = []string{
	"id", "question_id", "kind", "status", "attempts", "last_error",
	"created_at", "claimed_at", "processed_at",
}

func scanQuestion(row scannable) (*model.Question, error) {
	var q model.Question
	var optionsJSON, imagesJSON []byte
	err := row.Scan(
		&q.ID, &q.ExternalID, &q.Subject, &q.Topic, &q.Source, &q.Statement, &optionsJSON,
		&q.AnswerKey, &q.Commentary, &q.StatementFormatted, &q.CommentaryFormatted,
		&q.Review, &imagesJSON, &q.Active, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
			return nil, eris.Wrapf(err, "unmarshal options for %s", q.ID)
		}
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &q.Images); err != nil {
			return nil, eris.Wrapf(err, "unmarshal images for %s", q.ID)
		}
	}
	return &q, nil
}

func scanTask(row scannable) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.QuestionID, &t.Kind, &t.Status, &t.Attempts, &t.LastError,
		&t.CreatedAt, &t.ClaimedAt, &t.ProcessedAt)
	return t, err
}

func marshalQuestionJSON(q *model.Question) ([]byte, []byte, error) {
	options := q.Options
	if options == nil {
		options = []model.Option{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal options")
	}
	images := q.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal images")
	}
	return optionsJSON, imagesJSON, nil
}
