package crawler

import (
	"fmt"
	"net/url"
	"sync"
	"testing"
)

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestClaimIsMonotonic(t *testing.T) {
	v := NewVisitedSet(0)
	u := parse(t, "https://example.com/page")

	if !v.Claim(u) {
		t.Fatal("first claim rejected")
	}
	if v.Claim(u) {
		t.Fatal("second claim accepted")
	}
	if !v.Contains(u) {
		t.Fatal("claimed URL not contained")
	}
	if v.Len() != 1 {
		t.Fatalf("len = %d, want 1", v.Len())
	}
}

func TestClaimNormalizesURLVariants(t *testing.T) {
	v := NewVisitedSet(0)

	variants := []string{
		"https://Example.COM/page",
		"https://example.com/page",
		"https://example.com:443/page",
		"https://example.com/page#section",
	}
	var claimed int
	for _, raw := range variants {
		if v.Claim(parse(t, raw)) {
			claimed++
		}
	}
	if claimed != 1 {
		t.Fatalf("equivalent URL variants claimed %d times, want 1", claimed)
	}

	// A different query is a different resource.
	if !v.Claim(parse(t, "https://example.com/page?tab=2")) {
		t.Fatal("distinct query variant rejected")
	}
}

func TestConcurrentClaimsYieldOneWinner(t *testing.T) {
	v := NewVisitedSet(0)
	u := parse(t, "https://example.com/contested")

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Claim(u) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var won int
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("%d goroutines won the claim, want exactly 1", won)
	}
}

func TestCanonicalKeyDefaultPorts(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"http://example.com/", "http://example.com:80/", true},
		{"https://example.com/", "https://example.com:443/", true},
		{"http://example.com/", "http://example.com:8080/", false},
		{"http://example.com", "http://example.com/", true},
	}
	for _, tt := range tests {
		ka := canonicalKey(parse(t, tt.a))
		kb := canonicalKey(parse(t, tt.b))
		if (ka == kb) != tt.same {
			t.Errorf("canonicalKey(%q) vs (%q): got %v, want same=%v", tt.a, tt.b, ka == kb, tt.same)
		}
	}
}

func TestClaimManyDistinct(t *testing.T) {
	v := NewVisitedSet(8)
	for i := 0; i < 100; i++ {
		u := parse(t, fmt.Sprintf("https://example.com/p/%d", i))
		if !v.Claim(u) {
			t.Fatalf("distinct URL %d rejected", i)
		}
	}
	if v.Len() != 100 {
		t.Fatalf("len = %d, want 100", v.Len())
	}
}
