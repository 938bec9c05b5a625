// Package sitemap resolves a sitemap URL into a flat list of seed page URLs,
// expanding nested sitemap index files recursively.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxSitemapBytes caps how much sitemap XML is read from a single response.
const maxSitemapBytes = 16 * 1024 * 1024

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlLoc `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []xmlLoc `xml:"sitemap"`
}

type xmlLoc struct {
	Loc string `xml:"loc"`
}

// Resolver fetches and expands sitemaps with a bounded fetch budget so that
// malformed or self-referential sitemap trees terminate.
type Resolver struct {
	client     *http.Client
	userAgent  string
	maxFetches int
	logger     *slog.Logger
}

// NewResolver constructs a resolver. A nil client gets a default with a
// 15 second timeout; maxFetches <= 0 falls back to 50.
func NewResolver(client *http.Client, userAgent string, maxFetches int, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxFetches <= 0 {
		maxFetches = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:     client,
		userAgent:  userAgent,
		maxFetches: maxFetches,
		logger:     logger,
	}
}

// Resolve returns the page URLs reachable from the sitemap at sitemapURL.
// A sitemap with <url> entries contributes them directly; a sitemap index
// contributes the union of its children. Any fetch or parse failure yields
// an empty list so the caller can fall back to a single start URL.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) []string {
	sitemapURL = strings.TrimSpace(sitemapURL)
	if sitemapURL == "" {
		return nil
	}
	state := &resolveState{seen: make(map[string]struct{})}
	urls := r.resolve(ctx, sitemapURL, state)
	r.logger.Info("sitemap resolved", "url", sitemapURL, "seeds", len(urls), "fetches", state.fetches)
	return urls
}

type resolveState struct {
	fetches int
	seen    map[string]struct{}
}

func (r *Resolver) resolve(ctx context.Context, sitemapURL string, state *resolveState) []string {
	if state.fetches >= r.maxFetches {
		r.logger.Warn("sitemap fetch budget exhausted", "url", sitemapURL, "budget", r.maxFetches)
		return nil
	}
	if _, ok := state.seen[sitemapURL]; ok {
		r.logger.Warn("cyclic sitemap reference skipped", "url", sitemapURL)
		return nil
	}
	state.seen[sitemapURL] = struct{}{}
	state.fetches++

	body, err := r.fetch(ctx, sitemapURL)
	if err != nil {
		r.logger.Warn("sitemap fetch failed", "url", sitemapURL, "error", err)
		return nil
	}

	var urlset xmlURLSet
	if err := xml.Unmarshal(body, &urlset); err == nil && len(urlset.URLs) > 0 {
		urls := make([]string, 0, len(urlset.URLs))
		for _, entry := range urlset.URLs {
			loc := strings.TrimSpace(entry.Loc)
			if loc != "" {
				urls = append(urls, loc)
			}
		}
		return urls
	}

	var index xmlSitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		r.logger.Warn("sitemap parse failed", "url", sitemapURL, "error", err)
		return nil
	}

	var urls []string
	for _, child := range index.Sitemaps {
		loc := strings.TrimSpace(child.Loc)
		if loc == "" {
			continue
		}
		urls = append(urls, r.resolve(ctx, loc, state)...)
	}
	return urls
}

func (r *Resolver) fetch(ctx context.Context, sitemapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sitemap request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, fmt.Errorf("read sitemap body: %w", err)
	}
	return body, nil
}
