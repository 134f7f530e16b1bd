package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Www.Broshura.bg/h/lidl", "www.broshura.bg"},
		{"no scheme", "katalozi-bg.info/city/Варна", "katalozi-bg.info"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFunctionsInitialize(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(brochuresTotal.WithLabelValues("metrics-test", "stored"))
	ObserveBrochure("metrics-test", "stored")
	after := testutil.ToFloat64(brochuresTotal.WithLabelValues("metrics-test", "stored"))
	assert.InDelta(t, before+1, after, 0.001)

	ObserveFetch("https://metrics-test.example/a.jpg", "2xx", 100)
	assert.InDelta(t, 100, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("metrics-test.example")), 0.001)

	ObserveSkippedPages("metrics-test", 0)
	ObserveSkippedPages("metrics-test", 2)
	assert.InDelta(t, 2, testutil.ToFloat64(skippedPagesTotal.WithLabelValues("metrics-test")), 0.001)

	ObserveAsset("https://metrics-test.example/a.jpg", "ok")
	ObservePolitenessDelay("metrics-test.example", 300*time.Millisecond)
	IncActiveWorkers()
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.billa.bg", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
