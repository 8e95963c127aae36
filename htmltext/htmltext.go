// Package htmltext reduces message markup to plain text with one text node
// per line, which is what the extraction patterns expect.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

var skipped = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"title":  true,
}

// Convert returns the text content of markup. Input that does not look like
// HTML is returned unchanged.
func Convert(markup string) string {
	if !looksLikeHTML(markup) {
		return markup
	}
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		b     strings.Builder
		depth int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(collapse(text))
		}
	}
}

func looksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

// collapse folds runs of whitespace inside one text node to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
