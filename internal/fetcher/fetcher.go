package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// ErrTooLarge is returned when a download exceeds the configured byte cap.
var ErrTooLarge = errors.New("resource exceeds size cap")

// Fetcher retrieves a web page for the crawler. Implementations may render
// JavaScript or issue a plain HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, target types.Target) (*types.Page, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPFetcher implements Fetcher via the Go http.Client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads a single URL using HTTP GET.
func (f *HTTPFetcher) Fetch(ctx context.Context, target types.Target) (*types.Page, error) {
	if target.URL == nil {
		return nil, errors.New("target URL is nil")
	}

	req, err := f.newRequest(ctx, http.MethodGet, target.URL.String())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := target.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &types.Page{
		URL:             target.URL,
		FinalURL:        finalURL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header.Clone(),
		FetchedAt:       time.Now(),
		Rendered:        false,
		ResponseLatency: time.Since(start),
	}, nil
}

// HeadInfo captures the result of a HEAD probe issued before a document
// download to learn its reported size.
type HeadInfo struct {
	StatusCode    int
	ContentLength int64
	Header        http.Header
}

// Head issues a HEAD request and reports the Content-Length the server
// declared, or -1 when absent.
func (f *HTTPFetcher) Head(ctx context.Context, u *url.URL) (HeadInfo, error) {
	if u == nil {
		return HeadInfo{}, errors.New("head URL is nil")
	}
	req, err := f.newRequest(ctx, http.MethodHead, u.String())
	if err != nil {
		return HeadInfo{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return HeadInfo{}, fmt.Errorf("head request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	length := resp.ContentLength
	if length < 0 {
		if raw := resp.Header.Get("Content-Length"); raw != "" {
			if parsed, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				length = parsed
			}
		}
	}
	return HeadInfo{
		StatusCode:    resp.StatusCode,
		ContentLength: length,
		Header:        resp.Header.Clone(),
	}, nil
}

// Download streams the response body for u into w, enforcing the byte cap
// during the transfer. It returns the HTTP status and the number of bytes
// written; exceeding maxBytes yields ErrTooLarge.
func (f *HTTPFetcher) Download(ctx context.Context, u *url.URL, w io.Writer, maxBytes int64) (int, int64, error) {
	if u == nil {
		return 0, 0, errors.New("download URL is nil")
	}
	req, err := f.newRequest(ctx, http.MethodGet, u.String())
	if err != nil {
		return 0, 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, 0, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	if maxBytes <= 0 {
		maxBytes = f.maxBodyBytes
	}
	written, err := io.Copy(w, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return resp.StatusCode, written, fmt.Errorf("stream download: %w", err)
	}
	if written > maxBytes {
		return resp.StatusCode, written, ErrTooLarge
	}
	return resp.StatusCode, written, nil
}

func (f *HTTPFetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range f.extraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes: %w", f.maxBodyBytes, ErrTooLarge)
	}
	return body, nil
}

// Client exposes the underlying HTTP client for reuse (eg. sitemap and
// robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}

// Composite chooses between raw HTTP and a renderer per target.
type Composite struct {
	defaultFetcher Fetcher
	renderer       Renderer
	logger         *slog.Logger
}

// Renderer executes JavaScript and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, target types.Target) (*types.Page, error)
}

// NewComposite builds a composite fetcher from HTTP and optional renderer
// components. A nil logger falls back to slog.Default.
func NewComposite(httpFetcher Fetcher, renderer Renderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{defaultFetcher: httpFetcher, renderer: renderer, logger: logger}
}

// Fetch delegates to either the renderer (if requested) or the HTTP fetcher.
func (c *Composite) Fetch(ctx context.Context, target types.Target) (*types.Page, error) {
	if target.Render && c.renderer != nil {
		page, err := c.renderer.Render(ctx, target)
		if err == nil {
			return page, nil
		}
		// fall back to HTTP fetch on renderer errors.
		c.logger.Warn("renderer failed, falling back to HTTP fetch",
			"url", target.URL.String(), "error", err)
	}
	if target.Render {
		target.Render = false
	}
	return c.defaultFetcher.Fetch(ctx, target)
}
