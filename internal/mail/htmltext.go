package mail

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// blockTags are HTML elements whose boundaries become line breaks when
// flattening to text. Extraction patterns rely on these breaks to keep
// itinerary rows on separate lines.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "td": true,
	"th": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "blockquote": true, "pre": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// skipTags are elements whose text content is never user-visible.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
}

var horizontalWS = regexp.MustCompile(`[^\S\n]+`)

// HTMLToText converts HTML to structure-preserving plain text: a
// newline is emitted at the open and close of block-level tags, inline
// markup is discarded, horizontal whitespace collapses to one space,
// and runs of blank lines collapse to at most one. Malformed input
// never produces an error; the tokenizer yields whatever text it can.
func HTMLToText(htmlContent string) string {
	z := html.NewTokenizer(strings.NewReader(htmlContent))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := strings.ToLower(string(name))
			if skipTags[tag] && tt == html.StartTagToken {
				skipDepth++
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := strings.ToLower(string(name))
			if skipTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}

	return collapseText(b.String())
}

// collapseText normalizes whitespace: horizontal runs become one space,
// lines are trimmed, and consecutive blank lines are deduplicated.
func collapseText(text string) string {
	text = horizontalWS.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !prevEmpty {
				result = append(result, "")
			}
			prevEmpty = true
		} else {
			result = append(result, line)
			prevEmpty = false
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
