package enrich

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// maxExtractScan bounds how much of a reply the brace extractor inspects.
const maxExtractScan = 64 << 10

// ParseError reports that a model reply could not be decoded into the
// expected object. It matches ErrResponseParse under errors.Is.
type ParseError struct {
	Err    error
	Sample string
}

func (e *ParseError) Error() string {
	return "response parse failed: " + e.Err.Error() + " (reply: " + strconv.Quote(e.Sample) + ")"
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes a ParseError match ErrResponseParse.
func (e *ParseError) Is(target error) bool { return target == ErrResponseParse }

// Decode parses a model reply into T in three stages: a strict decode of
// the whole reply, then a decode of the first fenced or brace-balanced
// object found in it, then a *ParseError.
func Decode[T any](raw string) (T, error) {
	var out T
	text := strings.TrimSpace(raw)
	if text == "" {
		return out, &ParseError{Err: eris.New("empty reply")}
	}

	strictErr := json.Unmarshal([]byte(text), &out)
	if strictErr == nil {
		return out, nil
	}

	block, ok := extractObject(text)
	if !ok {
		return out, &ParseError{Err: eris.Wrap(strictErr, "no JSON object found"), Sample: sample(text)}
	}
	out = *new(T)
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return out, &ParseError{Err: eris.Wrap(err, "extracted object"), Sample: sample(text)}
	}
	return out, nil
}

// extractObject returns the first complete {...} block in text, preferring
// the body of a ``` fence when one is present. Braces inside JSON strings
// are ignored.
func extractObject(text string) (string, bool) {
	if body, ok := fenceBody(text); ok {
		if block, ok := balancedBlock(body); ok {
			return block, true
		}
	}
	return balancedBlock(text)
}

func fenceBody(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Drop the info string, e.g. "json".
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}

func balancedBlock(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	limit := len(text)
	if limit-start > maxExtractScan {
		limit = start + maxExtractScan
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < limit; i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func sample(s string) string {
	const n = 120
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Confidence is a score in [0,1]. Models sometimes quote numbers or send a
// percentage; both are accepted.
type Confidence float64

// UnmarshalJSON accepts 0.9, "0.9", 90 and "90%". Whole numbers above 1
// are read as percentages; anything else above 1 is kept and fails
// validation.
func (c *Confidence) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "confidence %s", string(b))
	}
	if pct || (v > 1 && v <= 100 && v == math.Trunc(v)) {
		v /= 100
	}
	*c = Confidence(v)
	return nil
}
