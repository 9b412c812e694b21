package ingest

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/question-bank/internal/model"
)

// column identifies the RawRecord field a spreadsheet column feeds.
type column int

const (
	colIgnored column = iota
	colExternalID
	colSubject
	colTopic
	colSource
	colStatement
	colAnswerKey
	colCommentary
	colImages
	colOption
)

var headerAliases = map[string]column{
	"external_id": colExternalID,
	"id":          colExternalID,
	"subject":     colSubject,
	"materia":     colSubject,
	"matéria":     colSubject,
	"topic":       colTopic,
	"assunto":     colTopic,
	"source":      colSource,
	"banca":       colSource,
	"statement":   colStatement,
	"enunciado":   colStatement,
	"answer_key":  colAnswerKey,
	"gabarito":    colAnswerKey,
	"commentary":  colCommentary,
	"comentario":  colCommentary,
	"comentário":  colCommentary,
	"images":      colImages,
	"imagens":     colImages,
}

// optionPrefixes name option columns; the remainder is the option label,
// e.g. "option_a" or "alternativa_b".
var optionPrefixes = []string{"option_", "alternativa_", "opcao_", "opção_"}

// imageSeparator splits multiple image references held in one cell.
const imageSeparator = "|"

type header struct {
	kinds  []column
	labels []string
}

func parseHeader(row []string) (header, error) {
	h := header{kinds: make([]column, len(row)), labels: make([]string, len(row))}
	hasID := false
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		name = strings.ReplaceAll(name, " ", "_")
		if kind, ok := headerAliases[name]; ok {
			h.kinds[i] = kind
			hasID = hasID || kind == colExternalID
			continue
		}
		for _, p := range optionPrefixes {
			if label, ok := strings.CutPrefix(name, p); ok && label != "" {
				h.kinds[i] = colOption
				h.labels[i] = strings.ToUpper(label)
				break
			}
		}
	}
	if !hasID {
		return header{}, eris.New("ingest: header has no external_id column")
	}
	return h, nil
}

// recordsFromRows maps tabular rows to raw records using the first row as
// header. Blank rows are skipped and empty option cells dropped.
func recordsFromRows(rows [][]string) ([]model.RawRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}

	var records []model.RawRecord
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		records = append(records, h.record(row))
	}
	return records, nil
}

func (h header) record(row []string) model.RawRecord {
	var rec model.RawRecord
	for i, cell := range row {
		if i >= len(h.kinds) {
			break
		}
		switch h.kinds[i] {
		case colExternalID:
			rec.ExternalID = strings.TrimSpace(cell)
		case colSubject:
			rec.Subject = cell
		case colTopic:
			rec.Topic = cell
		case colSource:
			rec.Source = cell
		case colStatement:
			rec.Statement = cell
		case colAnswerKey:
			rec.AnswerKey = cell
		case colCommentary:
			rec.Commentary = cell
		case colImages:
			for _, img := range strings.Split(cell, imageSeparator) {
				if img = strings.TrimSpace(img); img != "" {
					rec.Images = append(rec.Images, img)
				}
			}
		case colOption:
			if strings.TrimSpace(cell) != "" {
				rec.Options = append(rec.Options, model.Option{Label: h.labels[i], Text: cell})
			}
		}
	}
	return rec
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
