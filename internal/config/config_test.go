package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	yaml := `
crawl:
  start_url: "https://example.com/"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.MaxDepth != 2 {
		t.Fatalf("max_depth default = %d, want 2", cfg.Crawl.MaxDepth)
	}
	if !cfg.Crawl.SameDomainOnly {
		t.Fatal("same_domain_only should default to true")
	}
	if cfg.Crawl.MaxDocumentBytes != 10*1024*1024 {
		t.Fatalf("max_document_bytes default = %d", cfg.Crawl.MaxDocumentBytes)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Fatalf("concurrency default = %d, want 4", cfg.Worker.Concurrency)
	}
	if cfg.Storage.OutputDir != "results" {
		t.Fatalf("output_dir default = %q", cfg.Storage.OutputDir)
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	yaml := `
crawl:
  start_url: "  https://example.com/  "
  max_depth: 5
  per_domain_delay: "250ms"
  rate_limit_per_domain:
    requests: 10
    window: "1s"
storage:
  output_dir: "out"
  snapshot_every: 25
logging:
  level: "debug"
  structured: false
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.StartURL != "https://example.com/" {
		t.Fatalf("start_url not trimmed: %q", cfg.Crawl.StartURL)
	}
	if cfg.Crawl.MaxDepth != 5 {
		t.Fatalf("max_depth = %d, want 5", cfg.Crawl.MaxDepth)
	}
	if cfg.Crawl.PerDomainDelay.Duration != 250*time.Millisecond {
		t.Fatalf("per_domain_delay = %v", cfg.Crawl.PerDomainDelay.Duration)
	}
	if !cfg.Crawl.RateLimitPerDomain.Enabled() {
		t.Fatal("rate limit should be enabled")
	}
	if cfg.Storage.SnapshotEvery != 25 {
		t.Fatalf("snapshot_every = %d, want 25", cfg.Storage.SnapshotEvery)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := `
crawl:
  start_url: "https://example.com/"
  not_a_real_option: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with seed", func(c *Config) { c.Crawl.StartURL = "https://example.com/" }, false},
		{"sitemap only", func(c *Config) { c.Crawl.SitemapURL = "https://example.com/sitemap.xml" }, false},
		{"no seed at all", func(c *Config) {}, true},
		{"negative depth", func(c *Config) {
			c.Crawl.StartURL = "https://example.com/"
			c.Crawl.MaxDepth = -1
		}, true},
		{"zero concurrency", func(c *Config) {
			c.Crawl.StartURL = "https://example.com/"
			c.Worker.Concurrency = 0
		}, true},
		{"db driver without dsn", func(c *Config) {
			c.Crawl.StartURL = "https://example.com/"
			c.Storage.DB.Driver = "postgres"
		}, true},
		{"empty user agent", func(c *Config) {
			c.Crawl.StartURL = "https://example.com/"
			c.Crawl.UserAgent = ""
		}, true},
		{"robots respect without agent", func(c *Config) {
			c.Crawl.StartURL = "https://example.com/"
			c.Robots.Respect = true
			c.Robots.UserAgent = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationUnmarshalForms(t *testing.T) {
	yaml := `
crawl:
  start_url: "https://example.com/"
  request_timeout: 30
  per_domain_delay: "1.5s"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.RequestTimeout.Duration != 30*time.Second {
		t.Fatalf("numeric duration = %v, want 30s", cfg.Crawl.RequestTimeout.Duration)
	}
	if cfg.Crawl.PerDomainDelay.Duration != 1500*time.Millisecond {
		t.Fatalf("string duration = %v, want 1.5s", cfg.Crawl.PerDomainDelay.Duration)
	}
}
