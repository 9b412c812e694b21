package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/question-bank/internal/model"
)

const (
	// MinStatementLength is the minimum statement length in characters.
	MinStatementLength = 10
	// MinOptions is the minimum number of options a question must carry.
	MinOptions = 2
	// MinOptionLength is the option length below which a warning is raised.
	MinOptionLength = 2
)

// Content is the free text of a question subject to validation.
type Content struct {
	Statement  string         `json:"statement"`
	Options    []model.Option `json:"options"`
	Commentary string         `json:"commentary,omitempty"`
}

// Result reports whether content may be persisted. Sanitized holds the
// content to store when Valid is true.
type Result struct {
	Valid     bool     `json:"valid"`
	Sanitized Content  `json:"sanitized"`
	Warnings  []string `json:"warnings,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

var placeholderRe = regexp.MustCompile(`(?i)^\W*(?:image|imagem|img|figura|foto|picture)\W*$`)

// IsPlaceholder reports whether s consists only of an image placeholder word.
func IsPlaceholder(s string) bool {
	return placeholderRe.MatchString(strings.TrimSpace(s))
}

// Validate checks already-sanitized content. It never modifies its input;
// Sanitized in the result is c unchanged.
func Validate(c Content) Result {
	res := Result{Sanitized: c}

	statementLen := utf8.RuneCountInString(strings.TrimSpace(c.Statement))
	if statementLen < MinStatementLength {
		res.Errors = append(res.Errors, fmt.Sprintf("statement too short (%d < %d characters)", statementLen, MinStatementLength))
	}
	res.checkText("statement", c.Statement)

	if len(c.Options) < MinOptions {
		res.Errors = append(res.Errors, fmt.Sprintf("insufficient options (%d < %d)", len(c.Options), MinOptions))
	}
	seen := make(map[string]bool, len(c.Options))
	for i, o := range c.Options {
		name := optionName(i, o)
		if strings.TrimSpace(o.Label) == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s has no label", name))
		} else if seen[o.Label] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate option label %q", o.Label))
		}
		seen[o.Label] = true

		text := strings.TrimSpace(o.Text)
		if text == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("%s is empty", name))
			continue
		}
		if utf8.RuneCountInString(text) < MinOptionLength {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is very short", name))
		}
		res.checkText(name, o.Text)
	}

	if c.Commentary != "" {
		res.checkText("commentary", c.Commentary)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkText rejects residual corruption and placeholder-only text.
func (r *Result) checkText(name, text string) {
	if cats := Detect(text); len(cats) > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("%s contains corruption markers: %s", name, joinCategories(cats)))
	}
	if IsPlaceholder(text) {
		r.Errors = append(r.Errors, fmt.Sprintf("%s is a placeholder", name))
	}
}

// Check sanitizes every field of c and validates the result. This is the gate
// ingestion runs before anything is stored.
func Check(c Content) Result {
	var warnings []string
	clean := Content{Options: make([]model.Option, len(c.Options))}

	statement := Sanitize(c.Statement)
	clean.Statement = statement.Cleaned
	warnings = appendSanitized(warnings, "statement", statement)

	for i, o := range c.Options {
		text := Sanitize(o.Text)
		clean.Options[i] = model.Option{
			Label: strings.TrimSpace(o.Label),
			Text:  text.Cleaned,
		}
		warnings = appendSanitized(warnings, optionName(i, o), text)
	}

	if c.Commentary != "" {
		commentary := Sanitize(c.Commentary)
		clean.Commentary = commentary.Cleaned
		warnings = appendSanitized(warnings, "commentary", commentary)
	}

	res := Validate(clean)
	res.Warnings = append(warnings, res.Warnings...)
	return res
}

func appendSanitized(warnings []string, name string, sr SanitizeResult) []string {
	if len(sr.Removed) == 0 {
		return warnings
	}
	return append(warnings, fmt.Sprintf("%s sanitized: removed %s", name, joinCategories(sr.Removed)))
}

func optionName(i int, o model.Option) string {
	if l := strings.TrimSpace(o.Label); l != "" {
		return fmt.Sprintf("option %s", l)
	}
	return fmt.Sprintf("option #%d", i+1)
}

func joinCategories(cats []Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
