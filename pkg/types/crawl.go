package types

import (
	"net/http"
	"net/url"
	"time"
)

// ResourceKind classifies a crawl target's content and drives the fetch and
// extraction policy applied to it.
type ResourceKind string

const (
	KindHTML    ResourceKind = "html"
	KindPDF     ResourceKind = "pdf"
	KindDOCX    ResourceKind = "docx"
	KindDOC     ResourceKind = "doc"
	KindSkipped ResourceKind = "skipped"
)

// Document reports whether the kind refers to a downloadable document
// (as opposed to an HTML page or a skipped binary).
func (k ResourceKind) Document() bool {
	return k == KindPDF || k == KindDOCX || k == KindDOC
}

// Target models a work item on the crawler frontier. Targets are immutable
// once enqueued; identity is the normalized URL string.
type Target struct {
	URL        *url.URL
	Depth      int
	Parent     *url.URL
	Anchor     string
	MaxDepth   int
	Render     bool
	EnqueuedAt time.Time
}

// Page represents fetched content.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	Rendered        bool
	ResponseLatency time.Duration
}

// ResourceRecord is the durable outcome of processing one dequeued target.
// Exactly one record exists per visited URL, created after the fetch attempt
// whether it succeeded or failed, and never mutated afterwards.
type ResourceRecord struct {
	URL       string            `json:"url"`
	Depth     int               `json:"depth"`
	Type      ResourceKind      `json:"type"`
	Parent    string            `json:"parent,omitempty"`
	Anchor    string            `json:"anchor,omitempty"`
	Status    int               `json:"status"`
	Saved     map[string]string `json:"saved,omitempty"`
	Note      string            `json:"note,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Download status values stored under the record's "download_status" key.
const (
	DownloadDownloaded = "downloaded"
	DownloadTooLarge   = "too_large"
	DownloadError      = "error"
)

// LinkEdge is a directed discovery relationship from a page to a URL it
// links to. An edge is recorded for every discovered anchor regardless of
// whether the child is ever enqueued, and edges are not deduplicated.
type LinkEdge struct {
	Parent       string    `json:"parent,omitempty"`
	Child        string    `json:"child"`
	Depth        int       `json:"depth"`
	Anchor       string    `json:"anchor,omitempty"`
	Note         string    `json:"note,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// LinkRef is an outbound link extracted from an HTML body before any
// scope filtering is applied.
type LinkRef struct {
	URL    *url.URL
	Anchor string
}
