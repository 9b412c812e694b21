// Package ingest admits harvested question records into the store. Each
// record is inserted at most once; records that fail sanitization and
// validation are rejected and never persisted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/content"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/store"
)

// ErrValidation marks a record rejected by the content gate.
var ErrValidation = eris.New("validation failed")

// Rejection explains why one record was not stored.
type Rejection struct {
	Index      int      `json:"index"`
	ExternalID string   `json:"external_id"`
	Reasons    []string `json:"reasons"`
}

// Failure is a record whose store call errored.
type Failure struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
}

// Result aggregates one batch.
type Result struct {
	Inserted   int         `json:"inserted"`
	Skipped    int         `json:"skipped"`
	Rejected   int         `json:"rejected"`
	Errors     int         `json:"errors"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Failures   []Failure   `json:"failures,omitempty"`
	Warnings   int         `json:"warnings"`
}

// Total is the number of records the batch looked at.
func (r Result) Total() int {
	return r.Inserted + r.Skipped + r.Rejected + r.Errors
}

// Ingester validates and stores raw records.
type Ingester struct {
	store   store.Store
	newID   func() string
	records *prometheus.CounterVec
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithIDGenerator overrides question id generation.
func WithIDGenerator(fn func() string) Option {
	return func(in *Ingester) { in.newID = fn }
}

// WithMetrics registers the ingest counter on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(in *Ingester) {
		in.records = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "qbank",
			Name:      "ingest_records_total",
			Help:      "Raw records seen by ingestion, by result (inserted, skipped, rejected, error).",
		}, []string{"result"})
	}
}

// New returns an Ingester writing to st.
func New(st store.Store, opts ...Option) *Ingester {
	in := &Ingester{store: st, newID: uuid.NewString}
	for _, o := range opts {
		o(in)
	}
	return in
}

func (in *Ingester) count(result string) {
	if in.records != nil {
		in.records.WithLabelValues(result).Inc()
	}
}

// Ingest processes records in order. Per-record failures are counted and
// the batch continues; only context cancellation stops it early.
func (in *Ingester) Ingest(ctx context.Context, records []model.RawRecord) (Result, error) {
	var res Result
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrapf(err, "ingest: stopped after %d of %d records", i, len(records))
		}

		log := zap.L().With(zap.Int("index", i), zap.String("external_id", raw.ExternalID))

		q, warnings, err := in.admit(ctx, raw)
		res.Warnings += len(warnings)
		switch {
		case errors.Is(err, ErrValidation):
			res.Rejected++
			res.Rejections = append(res.Rejections, Rejection{Index: i, ExternalID: raw.ExternalID, Reasons: reasons(err)})
			in.count("rejected")
			log.Warn("ingest: record rejected", zap.Strings("reasons", reasons(err)))
			continue
		case err != nil:
			res.Errors++
			res.Failures = append(res.Failures, Failure{Index: i, ExternalID: raw.ExternalID, Error: err.Error()})
			in.count("error")
			log.Error("ingest: record failed", zap.Error(err))
			continue
		case q == nil:
			res.Skipped++
			in.count("skipped")
			log.Debug("ingest: duplicate skipped")
			continue
		}

		inserted, err := in.store.InsertQuestion(ctx, q)
		if err != nil {
			res.Errors++
			res.Failures = append(res.Failures, Failure{Index: i, ExternalID: raw.ExternalID, Error: err.Error()})
			in.count("error")
			log.Error("ingest: insert failed", zap.Error(err))
			continue
		}
		if !inserted {
			res.Skipped++
			in.count("skipped")
			continue
		}

		res.Inserted++
		in.count("inserted")
		if len(warnings) > 0 {
			log.Info("ingest: record inserted with warnings", zap.String("question_id", q.ID), zap.Strings("warnings", warnings))
		}
	}

	zap.L().Info("ingest: batch complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("rejected", res.Rejected),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// validationError carries the content gate's reasons.
type validationError struct {
	reasons []string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.reasons, "; "))
}

func (e *validationError) Is(target error) bool { return target == ErrValidation }

func reasons(err error) []string {
	var ve *validationError
	if errors.As(err, &ve) {
		return ve.reasons
	}
	return []string{err.Error()}
}

// admit returns the question to insert, or nil for an existing record.
func (in *Ingester) admit(ctx context.Context, raw model.RawRecord) (*model.Question, []string, error) {
	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return nil, nil, &validationError{reasons: []string{"missing external id"}}
	}

	exists, err := in.store.QuestionExists(ctx, externalID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: check existing")
	}
	if exists {
		return nil, nil, nil
	}

	checked := content.Check(content.Content{
		Statement:  raw.Statement,
		Options:    raw.Options,
		Commentary: raw.Commentary,
	})
	if !checked.Valid {
		return nil, checked.Warnings, &validationError{reasons: checked.Errors}
	}

	q, warnings := in.build(externalID, raw, checked.Sanitized)
	return q, append(checked.Warnings, warnings...), nil
}

// build assembles the canonical record from sanitized content.
func (in *Ingester) build(externalID string, raw model.RawRecord, clean content.Content) (*model.Question, []string) {
	var warnings []string

	q := &model.Question{
		ID:         in.newID(),
		ExternalID: externalID,
		Topic:      strings.TrimSpace(raw.Topic),
		Source:     strings.TrimSpace(raw.Source),
		Statement:  clean.Statement,
		Options:    clean.Options,
		Active:     true,
	}
	if s := strings.TrimSpace(raw.Subject); s != "" {
		q.Subject = &s
	}
	if clean.Commentary != "" {
		q.Commentary = model.StringPtr(clean.Commentary)
	}

	if key := strings.ToUpper(strings.TrimSpace(raw.AnswerKey)); key != "" {
		if i := slices.IndexFunc(q.OptionLabels(), func(l string) bool { return strings.EqualFold(l, key) }); i >= 0 {
			q.AnswerKey = model.StringPtr(q.Options[i].Label)
		} else {
			warnings = append(warnings, fmt.Sprintf("answer key %q matches no option; left unset", key))
		}
	}

	var images []string
	for _, img := range raw.Images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		if cats := content.Detect(img); len(cats) > 0 {
			warnings = append(warnings, fmt.Sprintf("image reference %q dropped: %s", img, joinCategories(cats)))
			continue
		}
		images = content.MergeImages(images, img)
	}
	images = content.MergeImages(images, content.ImageRefs(clean.Statement)...)
	for _, o := range clean.Options {
		images = content.MergeImages(images, content.ImageRefs(o.Text)...)
	}
	images = content.MergeImages(images, content.ImageRefs(clean.Commentary)...)
	q.Images = images

	return q, warnings
}

func joinCategories(cats []content.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
