package enrich

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

type reviewReply struct {
	Aprovado         *bool       `json:"aprovado" validate:"required"`
	GabaritoSugerido string      `json:"gabarito_sugerido"`
	Problemas        []string    `json:"problemas" validate:"max=20,dive,max=500"`
	Confianca        *Confidence `json:"confianca" validate:"required,gte=0,lte=1"`
}

// Review is the stored outcome of a full review, kept as JSON in the
// question's review column.
type Review struct {
	Approved     bool     `json:"aprovado"`
	SuggestedKey string   `json:"gabarito_sugerido,omitempty"`
	Problems     []string `json:"problemas"`
	Confidence   float64  `json:"confianca"`
}

// ParseReview decodes a stored review.
func ParseReview(s string) (Review, error) {
	var r Review
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return r, eris.Wrap(err, "enrich: parse review")
	}
	return r, nil
}

// fullReview audits a question that already has an answer key.
type fullReview struct{}

func (fullReview) Kind() model.TaskKind { return model.KindFullReview }

func (fullReview) Target() model.Field { return model.FieldReview }

func (fullReview) Eligibility() model.Eligibility {
	return model.Eligibility{
		Missing:    model.FieldReview,
		Requires:   []model.Field{model.FieldAnswerKey},
		ActiveOnly: true,
	}
}

func (fullReview) SystemPrompt() string { return fullReviewPrompt }

func (fullReview) Payload(q *model.Question) (string, error) {
	return buildPayload(q, model.FieldAnswerKey, model.FieldCommentary, model.FieldSubject)
}

func (fullReview) Evaluate(q *model.Question, reply string) (Result, error) {
	r, err := decodeReply[reviewReply](reply)
	if err != nil {
		return Result{}, err
	}

	rev := Review{
		Approved:   *r.Aprovado,
		Problems:   make([]string, 0, len(r.Problemas)),
		Confidence: float64(*r.Confianca),
	}
	if s := strings.TrimSpace(r.GabaritoSugerido); s != "" {
		key, err := normalizeKey(q, s)
		if err != nil {
			return Result{}, err
		}
		if key != deref(q.AnswerKey) {
			rev.SuggestedKey = key
		}
	}
	for _, p := range r.Problemas {
		if p = strings.TrimSpace(p); p != "" {
			rev.Problems = append(rev.Problems, p)
		}
	}
	if !rev.Approved && len(rev.Problems) == 0 && rev.SuggestedKey == "" {
		return Result{}, eris.Wrap(ErrInvalidResult, "rejected review lists no problems")
	}

	b, err := json.Marshal(rev)
	if err != nil {
		return Result{}, eris.Wrap(err, "enrich: marshal review")
	}
	return Result{Value: string(b), Confidence: rev.Confidence}, nil
}
