package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

// questionColumns is the column list shared by every question SELECT.
var questionColumns = []string{
	"id", "external_id", "subject", "topic", "source", "statement", "options",
	"answer_key", "commentary", "statement_formatted", "commentary_formatted",
	"review", "images", "active", "created_at", "updated_at",
}

// eligibilityPredicate renders e as a WHERE clause. prefix qualifies column
// names (e.g. "q."). Empty strings count as missing, matching
// model.Question.Has.
func eligibilityPredicate(e model.Eligibility, prefix string) (sq.And, error) {
	missing, err := e.Missing.Column()
	if err != nil {
		return nil, eris.Wrap(err, "store: eligibility")
	}
	missing = prefix + missing

	pred := sq.And{sq.Or{sq.Eq{missing: nil}, sq.Eq{missing: ""}}}
	for _, f := range e.Requires {
		col, err := f.Column()
		if err != nil {
			return nil, eris.Wrap(err, "store: eligibility")
		}
		col = prefix + col
		pred = append(pred, sq.NotEq{col: nil}, sq.NotEq{col: ""})
	}
	if e.ActiveOnly {
		pred = append(pred, sq.Eq{prefix + "active": true})
	}
	return pred, nil
}

// writableColumn resolves the column for a field enrichment may populate.
func writableColumn(f model.Field) (string, error) {
	if !f.Writable() {
		return "", eris.Errorf("store: field %q is not writable", f)
	}
	return f.Column()
}

// prefixed returns cols qualified with prefix.
func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}
