package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTMLExtractor derives readable plain text from an HTML body. Script,
// style, and noscript subtrees are dropped before the text walk.
type HTMLExtractor struct{}

// NewHTMLExtractor constructs the built-in HTML extractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

var blockLevelTags = map[string]struct{}{
	"p":          {},
	"div":        {},
	"section":    {},
	"article":    {},
	"header":     {},
	"footer":     {},
	"h1":         {},
	"h2":         {},
	"h3":         {},
	"h4":         {},
	"h5":         {},
	"h6":         {},
	"li":         {},
	"table":      {},
	"tr":         {},
	"figure":     {},
	"figcaption": {},
}

// Extract parses raw HTML and returns its text content with block-level
// boundaries rendered as newlines.
func (e *HTMLExtractor) Extract(ctx context.Context, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("html body empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,noscript,style,iframe").Remove()

	htmlStr, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialise html: %w", err)
	}

	root, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", fmt.Errorf("parse cleaned html: %w", err)
	}

	acc := &textAccumulator{}
	for child := findContentRoot(root).FirstChild; child != nil; child = child.NextSibling {
		accumulateText(child, acc)
	}
	return collapseBlankLines(strings.TrimSpace(acc.String())), nil
}

func findContentRoot(node *html.Node) *html.Node {
	if body := findFirstElement(node, "body"); body != nil {
		return body
	}
	if htmlNode := findFirstElement(node, "html"); htmlNode != nil {
		return htmlNode
	}
	return node
}

func findFirstElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	if node.Type == html.ElementNode && strings.EqualFold(node.Data, tag) {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

type textAccumulator struct {
	builder   strings.Builder
	lastRune  rune
	hasLast   bool
	lastWasNL bool
}

func (t *textAccumulator) String() string {
	return t.builder.String()
}

func (t *textAccumulator) append(value string) {
	if value == "" {
		return
	}
	t.builder.WriteString(value)
	for _, r := range value {
		t.lastRune = r
		t.hasLast = true
		t.lastWasNL = r == '\n'
	}
}

func (t *textAccumulator) ensureNewline() {
	if t.lastWasNL {
		return
	}
	t.append("\n")
}

func (t *textAccumulator) ensureSpaceBeforeText() {
	if !t.hasLast || t.lastRune == ' ' || t.lastRune == '\n' {
		return
	}
	t.append(" ")
}

func accumulateText(node *html.Node, acc *textAccumulator) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		text := normalizeWhitespace(node.Data)
		if text == "" {
			return
		}
		acc.ensureSpaceBeforeText()
		acc.append(text)
	case html.ElementNode:
		tag := strings.ToLower(node.Data)
		if tag == "br" {
			acc.ensureNewline()
			return
		}
		if _, ok := blockLevelTags[tag]; ok {
			acc.ensureNewline()
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			accumulateText(child, acc)
		}
		if _, ok := blockLevelTags[tag]; ok {
			acc.ensureNewline()
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	result := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			result = append(result, "")
			continue
		}
		blank = 0
		result = append(result, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
