package content

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizeResult is the output of Sanitize.
type SanitizeResult struct {
	Cleaned  string
	Modified bool
	Removed  []Category
}

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	spaceAroundLF   = regexp.MustCompile(` ?\n ?`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips every known corruption marker from text and collapses the
// whitespace the removals leave behind. It repeats until the text stops
// changing, so Sanitize(Sanitize(x).Cleaned).Cleaned == Sanitize(x).Cleaned.
func Sanitize(text string) SanitizeResult {
	removed := make(map[Category]bool)

	cur := text
	for {
		next := sanitizePass(cur, removed)
		if next == cur {
			break
		}
		cur = next
	}

	res := SanitizeResult{
		Cleaned:  cur,
		Modified: cur != text,
	}
	for _, r := range rules {
		if removed[r.category] {
			res.Removed = append(res.Removed, r.category)
		}
	}
	return res
}

func sanitizePass(text string, removed map[Category]bool) string {
	for _, r := range rules {
		for _, re := range r.patterns {
			if !re.MatchString(text) {
				continue
			}
			removed[r.category] = true
			text = re.ReplaceAllString(text, r.repl)
		}
	}
	return normalizeSpace(norm.NFC.String(text))
}

func normalizeSpace(s string) string {
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = spaceAroundLF.ReplaceAllString(s, "\n")
	s = extraBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
