package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// VisitedSet tracks URLs claimed by the frontier. Membership is monotonic:
// once a URL is claimed it stays claimed for the lifetime of the run, which
// is what guarantees a single resource record per URL regardless of how
// many pages link to it.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set sized for sizeHint entries.
func NewVisitedSet(sizeHint int) *VisitedSet {
	if sizeHint <= 0 {
		sizeHint = 1024
	}
	return &VisitedSet{seen: make(map[string]struct{}, sizeHint)}
}

// Claim atomically records the URL and reports whether this call was the
// first to do so. Concurrent claims of the same URL yield exactly one true.
func (v *VisitedSet) Claim(u *url.URL) bool {
	if u == nil {
		return false
	}
	key := canonicalKey(u)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Contains reports whether the URL has already been claimed.
func (v *VisitedSet) Contains(u *url.URL) bool {
	if u == nil {
		return false
	}
	key := canonicalKey(u)
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[key]
	return ok
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// canonicalKey normalizes a URL for identity comparison: lowercased scheme
// and host, default ports stripped, fragment dropped, query preserved.
func canonicalKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPort(scheme) {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := scheme + "://" + host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
