package enrich

import (
	"github.com/sells-group/question-bank/internal/model"
)

type answerReply struct {
	Gabarito  string      `json:"gabarito" validate:"required"`
	Confianca *Confidence `json:"confianca" validate:"required,gte=0,lte=1"`
}

// answerExtraction reads the answer key out of a question's commentary.
type answerExtraction struct{}

func (answerExtraction) Kind() model.TaskKind { return model.KindAnswerExtraction }

func (answerExtraction) Target() model.Field { return model.FieldAnswerKey }

func (answerExtraction) Eligibility() model.Eligibility {
	return model.Eligibility{
		Missing:    model.FieldAnswerKey,
		Requires:   []model.Field{model.FieldCommentary},
		ActiveOnly: true,
	}
}

func (answerExtraction) SystemPrompt() string { return answerExtractionPrompt }

func (answerExtraction) Payload(q *model.Question) (string, error) {
	return buildPayload(q, model.FieldCommentary)
}

func (answerExtraction) Evaluate(q *model.Question, reply string) (Result, error) {
	r, err := decodeReply[answerReply](reply)
	if err != nil {
		return Result{}, err
	}
	key, err := normalizeKey(q, r.Gabarito)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: key, Confidence: float64(*r.Confianca)}, nil
}
