package content

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// formattedPolicy allows the basic formatting a reformatted statement or
	// commentary may carry: paragraphs, emphasis, lists, tables, images.
	formattedPolicy = newFormattedPolicy()

	// strictPolicy removes every tag.
	strictPolicy = bluemonday.StrictPolicy()
)

func newFormattedPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("sub", "sup", "u", "s")
	p.AllowAttrs("src", "alt").OnElements("img")
	return p
}

// CleanFormatted sanitizes model-produced formatted HTML down to safe
// formatting markup.
func CleanFormatted(s string) string {
	return strings.TrimSpace(formattedPolicy.Sanitize(s))
}

// PlainText strips all markup from s and returns its whitespace-collapsed
// text content.
func PlainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strictPolicy.Sanitize(s))), " ")
}

// ImageRefs returns the distinct image sources referenced by <img> tags in s,
// in document order. Sources carrying corruption markers are skipped.
// Unparseable input yields no references.
func ImageRefs(s string) []string {
	if !strings.Contains(strings.ToLower(s), "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil
	}

	var refs []string
	seen := make(map[string]bool)
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || seen[src] || !IsClean(src) {
			return
		}
		seen[src] = true
		refs = append(refs, src)
	})
	return refs
}

// MergeImages appends refs not already present in images.
func MergeImages(images []string, refs ...string) []string {
	seen := make(map[string]bool, len(images))
	for _, img := range images {
		seen[img] = true
	}
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		images = append(images, r)
	}
	return images
}
