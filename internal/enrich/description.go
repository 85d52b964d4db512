package enrich

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// ShortDescriptionLimit is the longest derived short description, in runes.
const ShortDescriptionLimit = 200

// newMarkdown returns the renderer for entity descriptions. Raw HTML in
// descriptions is dropped rather than passed through.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
}

// renderMarkdown converts a Markdown description to an HTML fragment.
func renderMarkdown(md goldmark.Markdown, src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// blockElements separate words when they open or close.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "tr": true, "td": true, "th": true,
	"table": true, "hr": true,
}

// PlainText returns the visible text of an HTML fragment with whitespace
// collapsed to single spaces.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				skip++
			} else if blockElements[string(name)] {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				if skip > 0 {
					skip--
				}
			} else if blockElements[string(name)] {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				sb.WriteByte(' ')
			}
		}
	}
}

// FirstSentence returns text up to and including the first sentence
// terminator that is followed by whitespace or the end of text, capped at
// limit runes on a word boundary.
func FirstSentence(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	end := len(runes)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			end = i + 1
			break
		}
	}
	runes = runes[:end]
	if limit <= 0 || len(runes) <= limit {
		return string(runes)
	}

	// One rune is kept for the ellipsis.
	cut := runes[:limit-1]
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ,;:") + "…"
}
