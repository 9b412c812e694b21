// Package model defines questions, enrichment tasks and the fields the
// workflows read and populate.
package model

import "time"

// Option is one labelled alternative of a question.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Text  string `json:"text" yaml:"text"`
}

// RawRecord is a question as harvested from an external source. It is never
// persisted directly; ingestion validates and sanitizes it first.
type RawRecord struct {
	ExternalID string   `json:"external_id" yaml:"external_id"`
	Subject    string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Topic      string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	Source     string   `json:"source,omitempty" yaml:"source,omitempty"`
	Statement  string   `json:"statement" yaml:"statement"`
	Options    []Option `json:"options" yaml:"options"`
	AnswerKey  string   `json:"answer_key,omitempty" yaml:"answer_key,omitempty"`
	Commentary string   `json:"commentary,omitempty" yaml:"commentary,omitempty"`
	Images     []string `json:"images,omitempty" yaml:"images,omitempty"`
}

// Question is the canonical, validated question record that enrichment
// workflows read and update. Nullable fields are filled in by enrichment.
type Question struct {
	ID                  string    `json:"id"`
	ExternalID          string    `json:"external_id"`
	Subject             *string   `json:"subject,omitempty"`
	Topic               string    `json:"topic,omitempty"`
	Source              string    `json:"source,omitempty"`
	Statement           string    `json:"statement"`
	Options             []Option  `json:"options"`
	AnswerKey           *string   `json:"answer_key,omitempty"`
	Commentary          *string   `json:"commentary,omitempty"`
	StatementFormatted  *string   `json:"statement_formatted,omitempty"`
	CommentaryFormatted *string   `json:"commentary_formatted,omitempty"`
	Review              *string   `json:"review,omitempty"`
	Images              []string  `json:"images,omitempty"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Value returns the current value of a nullable field, or nil when the field
// is unset. Statement is always set for a stored question.
func (q *Question) Value(f Field) *string {
	switch f {
	case FieldStatement:
		return &q.Statement
	case FieldSubject:
		return q.Subject
	case FieldAnswerKey:
		return q.AnswerKey
	case FieldCommentary:
		return q.Commentary
	case FieldStatementFormatted:
		return q.StatementFormatted
	case FieldCommentaryFormatted:
		return q.CommentaryFormatted
	case FieldReview:
		return q.Review
	default:
		return nil
	}
}

// Set assigns a value to a nullable field. It returns false for fields that
// cannot be set this way.
func (q *Question) Set(f Field, v string) bool {
	switch f {
	case FieldSubject:
		q.Subject = &v
	case FieldAnswerKey:
		q.AnswerKey = &v
	case FieldCommentary:
		q.Commentary = &v
	case FieldStatementFormatted:
		q.StatementFormatted = &v
	case FieldCommentaryFormatted:
		q.CommentaryFormatted = &v
	case FieldReview:
		q.Review = &v
	default:
		return false
	}
	return true
}

// Has reports whether the field holds a non-empty value.
func (q *Question) Has(f Field) bool {
	v := q.Value(f)
	return v != nil && *v != ""
}

// OptionLabels returns the labels of the question's options in order.
func (q *Question) OptionLabels() []string {
	labels := make([]string, len(q.Options))
	for i, o := range q.Options {
		labels[i] = o.Label
	}
	return labels
}

// Clone returns a deep copy of the question.
func (q *Question) Clone() *Question {
	c := *q
	c.Options = append([]Option(nil), q.Options...)
	c.Images = append([]string(nil), q.Images...)
	c.Subject = cloneString(q.Subject)
	c.AnswerKey = cloneString(q.AnswerKey)
	c.Commentary = cloneString(q.Commentary)
	c.StatementFormatted = cloneString(q.StatementFormatted)
	c.CommentaryFormatted = cloneString(q.CommentaryFormatted)
	c.Review = cloneString(q.Review)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
