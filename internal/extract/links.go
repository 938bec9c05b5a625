package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// LinkParser extracts outbound anchors from an HTML body. Every anchor with
// an http(s) destination is reported, duplicates included, so the link graph
// records each discovery occurrence; scope filtering and enqueue dedup are
// the traversal engine's job.
type LinkParser struct {
	maxLinks int
}

// NewLinkParser constructs a parser; maxLinks <= 0 means 500.
func NewLinkParser(maxLinks int) *LinkParser {
	if maxLinks <= 0 {
		maxLinks = 500
	}
	return &LinkParser{maxLinks: maxLinks}
}

// ExtractLinks resolves every a[href] in body against base and returns the
// absolute URL and anchor text of each, fragments stripped, limited to
// http and https schemes.
func (p *LinkParser) ExtractLinks(body []byte, base *url.URL) ([]types.LinkRef, error) {
	if base == nil {
		return nil, fmt.Errorf("base URL is nil")
	}
	if len(body) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	links := make([]types.LinkRef, 0, 32)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}

		u, err := base.Parse(href)
		if err != nil {
			return true
		}
		u.Fragment = ""
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return true
		}

		links = append(links, types.LinkRef{
			URL:    u,
			Anchor: strings.TrimSpace(s.Text()),
		})
		return len(links) < p.maxLinks
	})

	return links, nil
}
