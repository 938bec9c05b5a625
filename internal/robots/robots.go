// Package robots evaluates robots.txt rules for crawl targets. The agent is
// opt-in: unless respect is enabled in configuration every URL is allowed,
// and even when enabled the agent fails open on fetch or parse errors so a
// broken robots.txt never stalls a crawl.
package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/config"
)

// Agent caches per-host robots.txt rules and answers allow/deny queries.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool

	mu        sync.RWMutex
	cache     map[string]hostRules
	overrides map[string]struct{}
}

type hostRules struct {
	expires time.Time
	data    *robotstxt.RobotsData
}

// NewAgent constructs an agent from configuration. A nil client gets a
// default with a short timeout.
func NewAgent(cfg config.RobotsConfig, client *http.Client) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			overrides[host] = struct{}{}
		}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		cache:     make(map[string]hostRules),
		overrides: overrides,
	}
}

// Allowed reports whether the target may be fetched. Hosts listed in the
// overrides are always allowed without consulting robots.txt.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.overrides[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	data, err := a.rules(ctx, target)
	if err != nil {
		return true
	}
	group := data.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	return group.Test(target.EscapedPath())
}

func (a *Agent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.data, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// FromResponse applies the status-code conventions itself: 4xx means
	// everything is allowed, 5xx means nothing is.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[host] = hostRules{expires: time.Now().Add(a.ttl), data: data}
	a.mu.Unlock()
	return data, nil
}

// Purge drops the cached rules for a host.
func (a *Agent) Purge(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	a.mu.Lock()
	delete(a.cache, host)
	a.mu.Unlock()
}
