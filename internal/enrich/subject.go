package enrich

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/content"
	"github.com/sells-group/question-bank/internal/model"
)

type subjectReply struct {
	Materia   string      `json:"materia" validate:"required,max=120"`
	Confianca *Confidence `json:"confianca" validate:"required,gte=0,lte=1"`
}

// subjectClassification assigns a subject to questions harvested without
// one.
type subjectClassification struct {
	// labels maps a folded label to its canonical spelling.
	labels map[string]string
}

func newSubjectClassification(labels []string) subjectClassification {
	s := subjectClassification{}
	if len(labels) > 0 {
		s.labels = make(map[string]string, len(labels))
		for _, l := range labels {
			if l = strings.TrimSpace(l); l != "" {
				s.labels[foldLabel(l)] = l
			}
		}
	}
	return s
}

func foldLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (subjectClassification) Kind() model.TaskKind { return model.KindSubjectClassification }

func (subjectClassification) Target() model.Field { return model.FieldSubject }

func (subjectClassification) Eligibility() model.Eligibility {
	return model.Eligibility{Missing: model.FieldSubject, ActiveOnly: true}
}

func (s subjectClassification) SystemPrompt() string {
	if len(s.labels) == 0 {
		return subjectClassificationPrompt
	}
	names := make([]string, 0, len(s.labels))
	for _, l := range s.labels {
		names = append(names, l)
	}
	slices.Sort(names)
	return subjectClassificationPrompt + "\n\nMatérias permitidas: " + strings.Join(names, "; ") + "."
}

func (subjectClassification) Payload(q *model.Question) (string, error) {
	return buildPayload(q, model.FieldCommentary)
}

func (s subjectClassification) Evaluate(_ *model.Question, reply string) (Result, error) {
	r, err := decodeReply[subjectReply](reply)
	if err != nil {
		return Result{}, err
	}
	label := strings.Join(strings.Fields(content.PlainText(r.Materia)), " ")
	if label == "" {
		return Result{}, eris.Wrap(ErrInvalidResult, "empty subject")
	}
	if s.labels != nil {
		canonical, ok := s.labels[foldLabel(label)]
		if !ok {
			return Result{}, eris.Wrapf(ErrInvalidResult, "subject %q not in taxonomy", label)
		}
		label = canonical
	}
	return Result{Value: label, Confidence: float64(*r.Confianca)}, nil
}
