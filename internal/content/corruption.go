// Package content detects and strips front-end template residue from
// harvested question text and gates what may be persisted.
package content

import "regexp"

// Category names a class of corruption marker.
type Category string

const (
	CategoryTemplateDirective  Category = "template_directive"
	CategoryTemplateComment    Category = "template_comment"
	CategoryBindingExpression  Category = "binding_expression"
	CategoryFormElement        Category = "form_element"
	CategoryTruncatedAttribute Category = "truncated_attribute"
)

// rule pairs a category with the patterns that detect it and the text each
// match is replaced with. Every pattern must match at least one character so
// that a replacement always changes the text.
type rule struct {
	category Category
	patterns []*regexp.Regexp
	repl     string
}

// rules are applied in order. Comments go first so that directives inside
// them do not leave fragments behind; truncated fragments go last because
// earlier removals can expose them.
var rules = []rule{
	{
		category: CategoryTemplateComment,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?s)<!--.*?-->`),
		},
		repl: " ",
	},
	{
		category: CategoryFormElement,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)</?(?:input|button|select|option|textarea|form|fieldset|label)\b[^>]*>`),
		},
		repl: " ",
	},
	{
		category: CategoryTemplateDirective,
		patterns: []*regexp.Regexp{
			// ng-if="x", data-ng-repeat='y', v-bind:title="z", x-show="w"
			regexp.MustCompile(`(?i)\s(?:data-)?(?:ng|v|x)-[a-z][\w:.-]*\s*=\s*(?:"[^"]*"|'[^']*')`),
			// :class="a", @click="b"
			regexp.MustCompile(`(?i)\s[:@][a-z][\w:.-]*\s*=\s*(?:"[^"]*"|'[^']*')`),
			// _ngcontent-abc-c12="" and _nghost-xyz
			regexp.MustCompile(`(?i)\s?_ng(?:content|host)-[\w-]+(?:=""|='')?`),
			// state classes Angular leaves on rendered nodes
			regexp.MustCompile(`\bng-(?:binding|scope|isolate-scope|pristine|dirty|valid|invalid|touched|untouched|hide|show|empty|not-empty|enter|leave|animate)\b`),
		},
		repl: "",
	},
	{
		category: CategoryBindingExpression,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\{\{[^{}]*\}\}`),
		},
		repl: " ",
	},
	{
		category: CategoryTruncatedAttribute,
		patterns: []*regexp.Regexp{
			// an opening tag whose last quoted attribute value runs off the
			// end of the text: <div class="enun
			regexp.MustCompile(`<[a-zA-Z][\w-]*(?:\s+[\w:.-]+(?:\s*=\s*(?:"[^"]*"|'[^']*'))?)*\s+[\w:.-]+\s*=\s*["'][^"'<>]*$`),
			// an image left without a source once bindings are collapsed
			regexp.MustCompile(`(?i)<img\b[^<>]*?\ssrc\s*=\s*(?:"\s*"|'\s*')[^<>]*>`),
			regexp.MustCompile(`(?i)<img(?:\s+(?:alt|title|class|id|style|width|height)(?:\s*=\s*(?:"[^"]*"|'[^']*'))?)*\s*/?>`),
		},
		repl: "",
	},
}

// Detect returns the corruption categories present in text, in rule order.
// It has no side effects.
func Detect(text string) []Category {
	var found []Category
	for _, r := range rules {
		for _, re := range r.patterns {
			if re.MatchString(text) {
				found = append(found, r.category)
				break
			}
		}
	}
	return found
}

// IsClean reports whether text carries no corruption markers.
func IsClean(text string) bool {
	return len(Detect(text)) == 0
}
