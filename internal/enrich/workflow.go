package enrich

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

// Workflow is one enrichment: which questions it applies to, what it asks
// the model, and how it turns a reply into the value of a single field.
type Workflow interface {
	Kind() model.TaskKind
	Eligibility() model.Eligibility
	Target() model.Field
	SystemPrompt() string
	Payload(q *model.Question) (string, error)
	// Evaluate decodes and validates a reply. It never consults the
	// confidence threshold; the runner gates on Result.Confidence.
	Evaluate(q *model.Question, reply string) (Result, error)
}

// Result is a validated reply ready to be written.
type Result struct {
	Value      string
	Confidence float64
}

// Options tunes workflow construction.
type Options struct {
	// SubjectLabels restricts subject classification to a fixed taxonomy.
	// Empty means any non-empty label is accepted.
	SubjectLabels []string
	// MinRetention is the fraction of the source's plain text a formatted
	// result must keep. Default 0.5.
	MinRetention float64
}

// NewWorkflow returns the workflow for kind.
func NewWorkflow(kind model.TaskKind, opts Options) (Workflow, error) {
	if opts.MinRetention <= 0 {
		opts.MinRetention = 0.5
	}
	switch kind {
	case model.KindAnswerExtraction:
		return answerExtraction{}, nil
	case model.KindSubjectClassification:
		return newSubjectClassification(opts.SubjectLabels), nil
	case model.KindStatementFormatting:
		return formatting{kind: kind, source: model.FieldStatement, target: model.FieldStatementFormatted, minRetention: opts.MinRetention}, nil
	case model.KindCommentaryFormatting:
		return formatting{kind: kind, source: model.FieldCommentary, target: model.FieldCommentaryFormatted, minRetention: opts.MinRetention}, nil
	case model.KindFullReview:
		return fullReview{}, nil
	default:
		return nil, eris.Errorf("enrich: no workflow for kind %q", kind)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeReply runs Decode and the struct's validate tags.
func decodeReply[T any](reply string) (T, error) {
	v, err := Decode[T](reply)
	if err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, tag(ErrInvalidResult, err)
	}
	return v, nil
}

// questionPayload is the JSON the model receives. Keys follow the reply
// vocabulary.
type questionPayload struct {
	Enunciado    string        `json:"enunciado"`
	Alternativas []alternativa `json:"alternativas"`
	Gabarito     string        `json:"gabarito,omitempty"`
	Comentario   string        `json:"comentario,omitempty"`
	Materia      string        `json:"materia,omitempty"`
	Assunto      string        `json:"assunto,omitempty"`
	Banca        string        `json:"banca,omitempty"`
}

type alternativa struct {
	Letra string `json:"letra"`
	Texto string `json:"texto"`
}

func buildPayload(q *model.Question, fields ...model.Field) (string, error) {
	p := questionPayload{
		Enunciado: q.Statement,
		Assunto:   q.Topic,
		Banca:     q.Source,
	}
	for _, o := range q.Options {
		p.Alternativas = append(p.Alternativas, alternativa{Letra: o.Label, Texto: o.Text})
	}
	for _, f := range fields {
		v := deref(q.Value(f))
		switch f {
		case model.FieldAnswerKey:
			p.Gabarito = v
		case model.FieldCommentary:
			p.Comentario = v
		case model.FieldSubject:
			p.Materia = v
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "enrich: marshal payload")
	}
	return string(b), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// answerKeys returns the keys a question's answer may take: its option
// labels restricted to A..E. Certo/errado items carry labels C and E.
func answerKeys(q *model.Question) map[string]bool {
	keys := make(map[string]bool)
	for _, l := range q.OptionLabels() {
		l = strings.ToUpper(strings.TrimSpace(l))
		if utf8.RuneCountInString(l) == 1 && l >= "A" && l <= "E" {
			keys[l] = true
		}
	}
	return keys
}

// normalizeKey maps a reply key onto the question's key set.
func normalizeKey(q *model.Question, key string) (string, error) {
	k := strings.ToUpper(strings.TrimSpace(key))
	k = strings.Trim(k, ".)( ")
	keys := answerKeys(q)
	if len(keys) == 2 && keys["C"] && keys["E"] {
		switch k {
		case "CERTO", "CORRETO", "VERDADEIRO":
			k = "C"
		case "ERRADO", "INCORRETO", "FALSO":
			k = "E"
		}
	}
	if !keys[k] {
		return "", eris.Wrapf(ErrInvalidResult, "answer key %q not among options %v", key, q.OptionLabels())
	}
	return k, nil
}
