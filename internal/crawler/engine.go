// Package crawler contains the crawl engine: frontier management, worker
// scheduling, per-domain politeness, and the per-target processing pipeline
// that turns fetched resources into durable records and link edges.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/classify"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/config"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/extract"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/fetcher"
	robotsclient "github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/robots"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/sitemap"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/store"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// Engine orchestrates a single-domain crawl: it seeds the frontier from the
// sitemap, dispatches targets to workers, and persists one resource record
// per visited URL plus every discovered link edge.
type Engine struct {
	cfg     config.Config
	fetcher fetcher.Fetcher
	http    *fetcher.HTTPFetcher
	robots  *robotsclient.Agent
	sitemap *sitemap.Resolver

	extractors *extract.Registry
	links      *extract.LinkParser
	store      *store.DomainStore
	limiter    *DomainLimiter
	visited    *VisitedSet

	logger *slog.Logger
	runID  string

	seedURL  *url.URL
	seedHost string

	maxPages int64
	enqueued atomic.Int64

	pool     *WorkerPool
	frontier *frontier

	// pending counts claimed targets not yet fully processed; the run is
	// complete when it returns to zero after seeding.
	pending    atomic.Int64
	doneCh     chan struct{}
	doneOnce   sync.Once
	feederDone chan struct{}

	cancelRun context.CancelFunc

	failMu  sync.Mutex
	failErr error

	closeOnce sync.Once
	closeErr  error
}

// NewEngine builds an engine from configuration. The per-domain store is
// opened immediately so configuration and filesystem problems surface
// before any network traffic.
func NewEngine(cfg config.Config) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	seedRaw := cfg.Crawl.StartURL
	if seedRaw == "" {
		seedRaw = cfg.Crawl.SitemapURL
	}
	seedURL, err := parseSeed(seedRaw)
	if err != nil {
		return nil, err
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		ProxyURL:     cfg.Crawl.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		switch strings.ToLower(cfg.Rendering.Engine) {
		case "chromedp", "chrome":
			renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
				Timeout:            cfg.Rendering.Timeout.Duration,
				WaitForSelector:    cfg.Rendering.WaitForSelector,
				UserAgent:          cfg.Crawl.UserAgent,
				MaxBodyBytes:       cfg.Crawl.MaxBodyBytes,
				DisableHeadless:    cfg.Rendering.DisableHeadless,
				ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
			})
		case "none":
			// Explicit opt-out even with the enabled flag set.
		default:
			return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
		}
	}

	runID := uuid.NewString()

	var mirror store.Mirror
	if cfg.Storage.DB.Driver != "" {
		sqlMirror, err := store.NewSQLMirror(cfg.Storage.DB, runID)
		if err != nil {
			return nil, fmt.Errorf("sql mirror: %w", err)
		}
		mirror = sqlMirror
	}

	domainStore, err := store.Open(cfg.Storage.OutputDir, seedURL.Host, cfg.Storage.SnapshotEvery, mirror)
	if err != nil {
		if mirror != nil {
			mirror.Close()
		}
		return nil, err
	}

	maxPages := int64(cfg.Crawl.MaxPages)
	if maxPages <= 0 {
		maxPages = math.MaxInt64
	}

	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher.NewComposite(httpFetcher, renderer, logger),
		http:       httpFetcher,
		robots:     robotsclient.NewAgent(cfg.Robots, httpFetcher.Client()),
		sitemap:    sitemap.NewResolver(httpFetcher.Client(), cfg.Crawl.UserAgent, cfg.Crawl.SitemapMaxFetches, logger),
		extractors: extract.NewRegistry(),
		links:      extract.NewLinkParser(0),
		store:      domainStore,
		limiter: NewDomainLimiter(cfg.Crawl.PerDomainDelay.Duration, RateLimiterSettings{
			Requests: cfg.Crawl.RateLimitPerDomain.Requests,
			Window:   cfg.Crawl.RateLimitPerDomain.Window.Duration,
		}),
		visited:    NewVisitedSet(cfg.Crawl.MaxPages),
		frontier:   newFrontier(),
		doneCh:     make(chan struct{}),
		feederDone: make(chan struct{}),
		logger:     logger.With("run_id", runID, "domain", seedURL.Hostname()),
		runID:      runID,
		seedURL:    seedURL,
		seedHost:   strings.ToLower(seedURL.Hostname()),
		maxPages:   maxPages,
	}, nil
}

// RunID returns the unique identifier assigned to this crawl run.
func (e *Engine) RunID() string { return e.runID }

// Store exposes the per-domain store, mainly for inspection after a run.
func (e *Engine) Store() *store.DomainStore { return e.store }

// Run executes the crawl to completion. It returns the context error on
// cancellation and the first persistence error if storage failed; a
// persistence failure aborts the whole run since continuing would record
// an incomplete picture of the domain.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancelRun = cancel

	pool, err := NewWorkerPool(runCtx, e.cfg.Worker.Concurrency, e.cfg.Worker.QueueSize)
	if err != nil {
		return err
	}
	e.pool = pool
	defer e.Close()

	seeds := e.seedTargets(runCtx)
	if len(seeds) == 0 {
		pool.Close()
		return errors.New("no seed URLs available")
	}
	e.logger.Info("crawl starting", "seeds", len(seeds), "max_depth", e.cfg.Crawl.MaxDepth)

	go e.feed(runCtx)

	// The extra pending unit holds the run open until every seed has been
	// offered to the frontier, so an early worker cannot end the run while
	// seeding is still underway.
	e.pending.Add(1)
	for _, seed := range seeds {
		e.enqueue(seed)
	}
	e.finish()

	var runErr error
	select {
	case <-runCtx.Done():
		e.logger.Warn("context cancelled, shutting down")
		runErr = ctx.Err()
	case <-e.doneCh:
	}

	cancel()
	<-e.feederDone
	pool.Close()

	if err := e.failure(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	e.logger.Info("crawl finished",
		"visited", e.visited.Len(),
		"records", len(e.store.Records()),
		"edges", len(e.store.Edges()),
	)
	return nil
}

// Close flushes a final snapshot and releases the store and its mirror.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}

// seedTargets resolves the frontier seeds. A configured sitemap is expanded
// first; when it yields nothing the start URL alone seeds the crawl.
func (e *Engine) seedTargets(ctx context.Context) []types.Target {
	maxDepth := e.cfg.Crawl.MaxDepth
	render := e.cfg.Rendering.Enabled

	var seeds []types.Target
	if e.cfg.Crawl.SitemapURL != "" {
		for _, raw := range e.sitemap.Resolve(ctx, e.cfg.Crawl.SitemapURL) {
			u, err := url.Parse(raw)
			if err != nil {
				e.logger.Debug("skipping malformed sitemap URL", "url", raw, "error", err)
				continue
			}
			seeds = append(seeds, types.Target{URL: u, Depth: 0, MaxDepth: maxDepth, Render: render})
		}
		if len(seeds) == 0 {
			e.logger.Warn("sitemap yielded no URLs, falling back to start URL", "sitemap", e.cfg.Crawl.SitemapURL)
		}
	}
	if len(seeds) == 0 && e.cfg.Crawl.StartURL != "" {
		seeds = append(seeds, types.Target{URL: e.seedURL, Depth: 0, MaxDepth: maxDepth, Render: render})
	}
	return seeds
}

// feed drains the frontier into the worker pool. It is the only submitter,
// so workers never block on a full queue no matter how many links a page
// yields. When the run context ends it discards whatever the frontier still
// holds so pending accounting reaches zero.
func (e *Engine) feed(ctx context.Context) {
	defer close(e.feederDone)
	for {
		t, ok := e.frontier.pop()
		if !ok {
			select {
			case <-ctx.Done():
				e.drainFrontier()
				return
			case <-e.doneCh:
				return
			case <-e.frontier.signal:
			}
			continue
		}
		target := t
		if err := e.pool.Submit(ctx, func(workerCtx context.Context) {
			defer e.finish()
			e.process(workerCtx, target)
		}); err != nil {
			e.finish()
			e.drainFrontier()
			return
		}
	}
}

// drainFrontier discards queued targets, balancing the pending count for
// each. Only called once the run is ending.
func (e *Engine) drainFrontier() {
	for {
		if _, ok := e.frontier.pop(); !ok {
			return
		}
		e.finish()
	}
}

// finish retires one pending target; the last one out ends the run.
func (e *Engine) finish() {
	if e.pending.Add(-1) == 0 {
		e.doneOnce.Do(func() { close(e.doneCh) })
	}
}

// enqueue claims the target and hands it to the frontier. The claim happens
// before scheduling so two pages linking to the same URL enqueue it exactly
// once. The frontier is unbounded, so enqueue never blocks a worker.
func (e *Engine) enqueue(t types.Target) {
	if t.URL == nil || t.Depth > t.MaxDepth {
		return
	}
	if !e.inScope(t.URL) {
		return
	}
	if e.enqueued.Load() >= e.maxPages {
		return
	}
	if !e.visited.Claim(t.URL) {
		return
	}
	if e.enqueued.Add(1) > e.maxPages {
		e.enqueued.Add(-1)
		return
	}

	t.EnqueuedAt = time.Now()
	e.pending.Add(1)
	e.frontier.push(t)
}

// inScope applies the traversal scope rules: http(s) only, and when
// same-domain mode is on the hostname must match the seed's.
func (e *Engine) inScope(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if e.cfg.Crawl.SameDomainOnly && !strings.EqualFold(u.Hostname(), e.seedHost) {
		return false
	}
	return true
}

// process handles one dequeued target. Every path through it that is not a
// cancellation writes exactly one resource record.
func (e *Engine) process(ctx context.Context, t types.Target) {
	if ctx.Err() != nil {
		return
	}

	if !e.robots.Allowed(ctx, t.URL) {
		e.logger.Debug("blocked by robots", "url", t.URL.String())
		e.writeRecord(types.ResourceRecord{
			URL:       t.URL.String(),
			Depth:     t.Depth,
			Type:      classify.ByURL(t.URL),
			Parent:    parentString(t),
			Anchor:    t.Anchor,
			Note:      "blocked_by_robots",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	if err := e.limiter.Wait(ctx, t.URL.Hostname()); err != nil {
		return
	}

	kind := classify.ByURL(t.URL)
	switch {
	case kind == types.KindSkipped:
		e.logger.Debug("skipping binary resource", "url", t.URL.String())
		e.writeRecord(types.ResourceRecord{
			URL:       t.URL.String(),
			Depth:     t.Depth,
			Type:      types.KindSkipped,
			Parent:    parentString(t),
			Anchor:    t.Anchor,
			Note:      "skipped_non_text",
			Timestamp: time.Now().UTC(),
		})
	case kind.Document():
		e.processDocument(ctx, t, kind)
	default:
		e.processPage(ctx, t)
	}
}

// processPage fetches an HTML target, persists raw and extracted content,
// records an edge for every outbound anchor, and enqueues in-scope children.
func (e *Engine) processPage(ctx context.Context, t types.Target) {
	rec := types.ResourceRecord{
		URL:       t.URL.String(),
		Depth:     t.Depth,
		Type:      types.KindHTML,
		Parent:    parentString(t),
		Anchor:    t.Anchor,
		Timestamp: time.Now().UTC(),
	}

	page, err := e.fetcher.Fetch(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn("fetch failed", "url", t.URL.String(), "error", err)
		if errors.Is(err, fetcher.ErrTooLarge) {
			rec.Note = "body_too_large"
		} else {
			rec.Note = "fetch_failed: " + err.Error()
		}
		e.writeRecord(rec)
		return
	}
	rec.Status = page.StatusCode

	if page.StatusCode < 200 || page.StatusCode >= 300 {
		e.logger.Warn("page returned non-success status", "url", t.URL.String(), "status", page.StatusCode)
		rec.Type = classify.Refine(types.KindHTML, page.Headers)
		rec.Note = "http_error"
		e.writeRecord(rec)
		return
	}

	// Headers can correct a bad URL-based guess, e.g. an extensionless
	// endpoint that actually serves a PDF.
	if refined := classify.Refine(types.KindHTML, page.Headers); refined.Document() {
		e.storeFetchedDocument(ctx, t, refined, page)
		return
	}

	token := store.FilenameToken(t.URL)
	saved := make(map[string]string, 2)

	rawPath, err := e.store.SaveRaw(token, page.Body)
	if err != nil {
		e.fail(err)
		return
	}
	saved["html"] = rawPath

	text, extractErr := e.extractors.Extract(ctx, types.KindHTML, page.Body)
	payload := store.ParsedPayload{URL: t.URL.String(), Text: text}
	if extractErr != nil {
		e.logger.Debug("text extraction failed", "url", t.URL.String(), "error", extractErr)
		payload.Note = "extract_error: " + extractErr.Error()
		rec.Note = "extract_error: " + extractErr.Error()
	}
	parsedPath, err := e.store.SaveParsed(token, payload)
	if err != nil {
		e.fail(err)
		return
	}
	saved["parsed"] = parsedPath
	rec.Saved = saved

	base := page.FinalURL
	if base == nil {
		base = t.URL
	}
	links, linkErr := e.links.ExtractLinks(page.Body, base)
	if linkErr != nil {
		e.logger.Debug("link extraction failed", "url", t.URL.String(), "error", linkErr)
	}

	if len(links) > 0 {
		now := time.Now().UTC()
		edges := make([]types.LinkEdge, 0, len(links))
		for _, link := range links {
			edges = append(edges, types.LinkEdge{
				Parent:       t.URL.String(),
				Child:        link.URL.String(),
				Depth:        t.Depth + 1,
				Anchor:       link.Anchor,
				DiscoveredAt: now,
			})
		}
		if err := e.store.AppendEdges(edges); err != nil {
			e.fail(err)
			return
		}
	}

	e.writeRecord(rec)

	if t.Depth >= t.MaxDepth {
		return
	}
	for _, link := range links {
		e.enqueue(types.Target{
			URL:      link.URL,
			Depth:    t.Depth + 1,
			Parent:   t.URL,
			Anchor:   link.Anchor,
			MaxDepth: t.MaxDepth,
			Render:   e.cfg.Rendering.Enabled,
		})
	}
}

// processDocument retrieves a document target under the size cap. A HEAD
// probe rejects oversized files before any bytes are transferred; a HEAD
// failure is ignored and the capped download decides instead.
func (e *Engine) processDocument(ctx context.Context, t types.Target, kind types.ResourceKind) {
	rec := types.ResourceRecord{
		URL:       t.URL.String(),
		Depth:     t.Depth,
		Type:      kind,
		Parent:    parentString(t),
		Anchor:    t.Anchor,
		Saved:     make(map[string]string, 3),
		Timestamp: time.Now().UTC(),
	}
	maxBytes := e.cfg.Crawl.MaxDocumentBytes

	head, headErr := e.http.Head(ctx, t.URL)
	if headErr == nil {
		rec.Type = classify.Refine(kind, head.Header)
		rec.Status = head.StatusCode
		if head.ContentLength > maxBytes {
			e.logger.Info("document exceeds size cap, skipping download",
				"url", t.URL.String(), "content_length", head.ContentLength, "cap", maxBytes)
			rec.Saved["download_status"] = types.DownloadTooLarge
			rec.Note = "content_length_exceeds_cap"
			e.writeRecord(rec)
			return
		}
	} else {
		if ctx.Err() != nil {
			return
		}
		e.logger.Debug("head probe failed, attempting capped download", "url", t.URL.String(), "error", headErr)
	}

	token := store.FilenameToken(t.URL)
	ext := path.Ext(t.URL.Path)
	if ext == "" {
		ext = "." + string(rec.Type)
	}

	var status int
	var body bytes.Buffer
	filePath, err := e.store.WriteDocument(token, ext, func(w io.Writer) error {
		s, _, derr := e.http.Download(ctx, t.URL, io.MultiWriter(w, &body), maxBytes)
		status = s
		return derr
	})
	if status != 0 {
		rec.Status = status
	}
	switch {
	case err == nil:
		rec.Saved["file"] = filePath
		rec.Saved["download_status"] = types.DownloadDownloaded
	case errors.Is(err, fetcher.ErrTooLarge):
		e.logger.Info("document download exceeded size cap", "url", t.URL.String(), "cap", maxBytes)
		rec.Saved["download_status"] = types.DownloadTooLarge
		rec.Note = "download_exceeds_cap"
	default:
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn("document download failed", "url", t.URL.String(), "error", err)
		rec.Saved["download_status"] = types.DownloadError
		rec.Note = "download_failed: " + err.Error()
	}

	if rec.Saved["download_status"] == types.DownloadDownloaded {
		sidecar, perr := e.store.SaveDocumentParsed(token, e.documentPayload(ctx, t, &rec, body.Bytes()))
		if perr != nil {
			e.fail(perr)
			return
		}
		rec.Saved["parsed"] = sidecar
	}

	e.writeRecord(rec)
}

// documentPayload runs the registered extractor for a downloaded document
// over its bytes. Kinds without an extractor degrade to a tagged empty
// payload; a failing extractor marks both the payload and the record.
func (e *Engine) documentPayload(ctx context.Context, t types.Target, rec *types.ResourceRecord, body []byte) store.ParsedPayload {
	payload := store.ParsedPayload{URL: t.URL.String()}
	text, err := e.extractors.Extract(ctx, rec.Type, body)
	switch {
	case err == nil:
		payload.Text = text
	case errors.Is(err, extract.ErrNoExtractor):
		payload.Note = "no_text_extractor"
	default:
		e.logger.Debug("document text extraction failed", "url", t.URL.String(), "error", err)
		payload.Note = "extract_error: " + err.Error()
		rec.Note = "extract_error: " + err.Error()
	}
	return payload
}

// storeFetchedDocument persists a body that was fetched as HTML but turned
// out to be a document according to its response headers.
func (e *Engine) storeFetchedDocument(ctx context.Context, t types.Target, kind types.ResourceKind, page *types.Page) {
	rec := types.ResourceRecord{
		URL:       t.URL.String(),
		Depth:     t.Depth,
		Type:      kind,
		Parent:    parentString(t),
		Anchor:    t.Anchor,
		Status:    page.StatusCode,
		Saved:     make(map[string]string, 2),
		Timestamp: time.Now().UTC(),
	}

	token := store.FilenameToken(t.URL)
	ext := path.Ext(t.URL.Path)
	if ext == "" {
		ext = "." + string(kind)
	}

	filePath, err := e.store.WriteDocument(token, ext, func(w io.Writer) error {
		_, werr := w.Write(page.Body)
		return werr
	})
	if err != nil {
		e.fail(err)
		return
	}
	rec.Saved["file"] = filePath
	rec.Saved["download_status"] = types.DownloadDownloaded

	sidecar, err := e.store.SaveDocumentParsed(token, e.documentPayload(ctx, t, &rec, page.Body))
	if err != nil {
		e.fail(err)
		return
	}
	rec.Saved["parsed"] = sidecar

	e.writeRecord(rec)
}

// writeRecord persists one resource record; a storage failure aborts the run.
func (e *Engine) writeRecord(rec types.ResourceRecord) {
	if err := e.store.AppendRecord(rec); err != nil {
		e.fail(err)
	}
}

// fail records the first fatal error and cancels the run.
func (e *Engine) fail(err error) {
	e.failMu.Lock()
	if e.failErr == nil {
		e.failErr = err
		e.logger.Error("persistence failure, aborting crawl", "error", err)
	}
	e.failMu.Unlock()
	if e.cancelRun != nil {
		e.cancelRun()
	}
}

func (e *Engine) failure() error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failErr
}

func parentString(t types.Target) string {
	if t.Parent == nil {
		return ""
	}
	return t.Parent.String()
}

func parseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse seed URL %q: %w", raw, err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("seed URL %q missing host", raw)
	}
	return u, nil
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
