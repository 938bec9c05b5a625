package crawler

import (
	"net/url"
	"testing"
	"time"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

func frontierTarget(t *testing.T, raw string) types.Target {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return types.Target{URL: u}
}

func TestFrontierFIFO(t *testing.T) {
	f := newFrontier()
	if _, ok := f.pop(); ok {
		t.Fatal("pop on empty frontier returned a target")
	}

	f.push(frontierTarget(t, "https://example.com/a"))
	f.push(frontierTarget(t, "https://example.com/b"))
	if got := f.len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}

	first, ok := f.pop()
	if !ok || first.URL.Path != "/a" {
		t.Fatalf("first pop = %v, %v", first, ok)
	}
	second, ok := f.pop()
	if !ok || second.URL.Path != "/b" {
		t.Fatalf("second pop = %v, %v", second, ok)
	}
	if got := f.len(); got != 0 {
		t.Fatalf("len after draining = %d, want 0", got)
	}
}

func TestFrontierSignalsPush(t *testing.T) {
	f := newFrontier()
	f.push(frontierTarget(t, "https://example.com/"))

	select {
	case <-f.signal:
	case <-time.After(time.Second):
		t.Fatal("push did not signal")
	}

	// A second push while a wakeup is already pending must not block.
	done := make(chan struct{})
	go func() {
		f.push(frontierTarget(t, "https://example.com/x"))
		f.push(frontierTarget(t, "https://example.com/y"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked with a pending wakeup")
	}
}
