package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if discoveryURLsTotal == nil || extractionTotal == nil ||
		httpRequestsTotal == nil || pacerDelaySeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(discoveryURLsTotal.WithLabelValues("sitemap"))
	ObserveDiscovered("sitemap", 3, 0)
	if val := testutil.ToFloat64(discoveryURLsTotal.WithLabelValues("sitemap")); val != before+3 {
		t.Errorf("expected discovery_urls_total to grow by 3, got %f -> %f", before, val)
	}

	before = testutil.ToFloat64(extractionTotal.WithLabelValues("needs_ocr"))
	ObserveExtraction("needs_ocr")
	if val := testutil.ToFloat64(extractionTotal.WithLabelValues("needs_ocr")); val != before+1 {
		t.Errorf("expected extraction counter to grow by 1, got %f -> %f", before, val)
	}

	before = testutil.ToFloat64(rateLimitHitsTotal.WithLabelValues("hub"))
	ObserveRateLimitHit("hub")
	if val := testutil.ToFloat64(rateLimitHitsTotal.WithLabelValues("hub")); val != before+1 {
		t.Errorf("expected rate limit counter to grow by 1, got %f -> %f", before, val)
	}

	before = testutil.ToFloat64(jobLogDroppedTotal.WithLabelValues("unknown", "invalid"))
	ObserveJobLogDropped("", "invalid")
	if val := testutil.ToFloat64(jobLogDroppedTotal.WithLabelValues("unknown", "invalid")); val != before+1 {
		t.Errorf("expected untyped drop to count as unknown, got %f -> %f", before, val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
