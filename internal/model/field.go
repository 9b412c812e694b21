package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Field names a question column that enrichment can read or populate.
type Field string

const (
	FieldStatement           Field = "statement"
	FieldSubject             Field = "subject"
	FieldAnswerKey           Field = "answer_key"
	FieldCommentary          Field = "commentary"
	FieldStatementFormatted  Field = "statement_formatted"
	FieldCommentaryFormatted Field = "commentary_formatted"
	FieldReview              Field = "review"
)

// writableFields are the columns an enrichment workflow may populate.
var writableFields = map[Field]bool{
	FieldSubject:             true,
	FieldAnswerKey:           true,
	FieldStatementFormatted:  true,
	FieldCommentaryFormatted: true,
	FieldReview:              true,
}

// Writable reports whether enrichment is allowed to populate the field.
func (f Field) Writable() bool {
	return writableFields[f]
}

// Column returns the storage column for the field.
func (f Field) Column() (string, error) {
	switch f {
	case FieldStatement, FieldSubject, FieldAnswerKey, FieldCommentary,
		FieldStatementFormatted, FieldCommentaryFormatted, FieldReview:
		return string(f), nil
	default:
		return "", eris.Errorf("unknown field %q", string(f))
	}
}

// Eligibility describes which questions a workflow may act on: the target
// field must be missing and every required field must be present.
type Eligibility struct {
	Missing    Field
	Requires   []Field
	ActiveOnly bool
}

// Check evaluates the eligibility against a stored question. When the
// question is not eligible, reason explains why in a form suitable for a
// skipped task.
func (e Eligibility) Check(q *Question) (ok bool, reason string) {
	if q == nil {
		return false, "question not found"
	}
	if e.ActiveOnly && !q.Active {
		return false, "question inactive"
	}
	if q.Has(e.Missing) {
		return false, fmt.Sprintf("%s already populated", e.Missing)
	}
	for _, f := range e.Requires {
		if !q.Has(f) {
			return false, fmt.Sprintf("missing prerequisite %s", f)
		}
	}
	return true, ""
}
