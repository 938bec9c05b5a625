package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestFetchPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	page, err := f.Fetch(context.Background(), types.Target{URL: mustParse(t, srv.URL)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", page.StatusCode)
	}
	if !strings.Contains(string(page.Body), "hello") {
		t.Fatalf("body missing content: %q", page.Body)
	}
	if page.ContentType != "text/html" {
		t.Fatalf("content type = %q", page.ContentType)
	}
}

func TestFetchGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, "<html>compressed</html>")
		gz.Close()
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	// Disable the transport's transparent decompression so our own path runs.
	f.client.Transport.(*http.Transport).DisableCompression = true

	page, err := f.Fetch(context.Background(), types.Target{URL: mustParse(t, srv.URL)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(page.Body) != "<html>compressed</html>" {
		t.Fatalf("unexpected decoded body %q", page.Body)
	}
}

func TestFetchBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent", MaxBodyBytes: 1024})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	if _, err := f.Fetch(context.Background(), types.Target{URL: mustParse(t, srv.URL)}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestHeadReportsContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "20000000")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	info, err := f.Head(context.Background(), mustParse(t, srv.URL+"/big.pdf"))
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentLength != 20000000 {
		t.Fatalf("content length = %d", info.ContentLength)
	}
}

func TestDownloadStreamsWithinCap(t *testing.T) {
	payload := bytes.Repeat([]byte("d"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	var buf bytes.Buffer
	status, n, err := f.Download(context.Background(), mustParse(t, srv.URL), &buf, 8192)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if status != http.StatusOK || n != int64(len(payload)) {
		t.Fatalf("status=%d written=%d", status, n)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatal("downloaded bytes differ from payload")
	}
}

func TestDownloadExceedingCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("d"), 4096))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(Options{UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	var buf bytes.Buffer
	if _, _, err := f.Download(context.Background(), mustParse(t, srv.URL), &buf, 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

type stubFetcher struct {
	page *types.Page
	err  error
}

func (s stubFetcher) Fetch(ctx context.Context, target types.Target) (*types.Page, error) {
	return s.page, s.err
}

type stubRenderer struct {
	page *types.Page
	err  error
}

func (s stubRenderer) Render(ctx context.Context, target types.Target) (*types.Page, error) {
	return s.page, s.err
}

func TestCompositeFallsBackOnRendererError(t *testing.T) {
	u := mustParse(t, "https://example.com/")
	httpPage := &types.Page{URL: u, StatusCode: 200}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	c := NewComposite(stubFetcher{page: httpPage}, stubRenderer{err: errors.New("boom")}, logger)

	page, err := c.Fetch(context.Background(), types.Target{URL: u, Render: true})
	if err != nil {
		t.Fatalf("composite fetch: %v", err)
	}
	if page != httpPage {
		t.Fatal("expected HTTP fallback page")
	}
	if !strings.Contains(logBuf.String(), "renderer failed") {
		t.Fatalf("fallback not logged through injected logger:\n%s", logBuf.String())
	}
}

func TestCompositePrefersRenderer(t *testing.T) {
	u := mustParse(t, "https://example.com/")
	rendered := &types.Page{URL: u, StatusCode: 200, Rendered: true}
	c := NewComposite(stubFetcher{page: &types.Page{URL: u}}, stubRenderer{page: rendered}, nil)

	page, err := c.Fetch(context.Background(), types.Target{URL: u, Render: true})
	if err != nil {
		t.Fatalf("composite fetch: %v", err)
	}
	if !page.Rendered {
		t.Fatal("expected rendered page")
	}
}
