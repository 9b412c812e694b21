package enrich

import (
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/content"
	"github.com/sells-group/question-bank/internal/model"
)

type formatReply struct {
	TextoFormatado string      `json:"texto_formatado" validate:"required"`
	Confianca      *Confidence `json:"confianca" validate:"required,gte=0,lte=1"`
}

// formatting rewrites a statement or commentary as clean HTML. The result
// must stay free of corruption markers and keep most of the source text.
type formatting struct {
	kind         model.TaskKind
	source       model.Field
	target       model.Field
	minRetention float64
}

func (f formatting) Kind() model.TaskKind { return f.kind }

func (f formatting) Target() model.Field { return f.target }

func (f formatting) Eligibility() model.Eligibility {
	e := model.Eligibility{Missing: f.target, ActiveOnly: true}
	if f.source != model.FieldStatement {
		e.Requires = []model.Field{f.source}
	}
	return e
}

func (f formatting) SystemPrompt() string {
	if f.source == model.FieldCommentary {
		return commentaryFormattingPrompt
	}
	return statementFormattingPrompt
}

func (f formatting) Payload(q *model.Question) (string, error) {
	if f.source == model.FieldCommentary {
		return buildPayload(q, model.FieldCommentary)
	}
	return buildPayload(q)
}

func (f formatting) Evaluate(q *model.Question, reply string) (Result, error) {
	r, err := decodeReply[formatReply](reply)
	if err != nil {
		return Result{}, err
	}

	cleaned := content.CleanFormatted(r.TextoFormatado)
	if cats := content.Detect(cleaned); len(cats) > 0 {
		return Result{}, eris.Wrapf(ErrInvalidResult, "formatted text still corrupted: %v", cats)
	}

	src := utf8.RuneCountInString(content.PlainText(deref(q.Value(f.source))))
	got := utf8.RuneCountInString(content.PlainText(cleaned))
	if got == 0 || float64(got) < f.minRetention*float64(src) {
		return Result{}, eris.Wrapf(ErrInvalidResult, "formatted text keeps %d of %d characters", got, src)
	}
	return Result{Value: cleaned, Confidence: float64(*r.Confianca)}, nil
}
