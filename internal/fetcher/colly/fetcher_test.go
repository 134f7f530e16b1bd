package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0),
		&crawler.FetchResponse{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.AllowURLRevisit)
	assert.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"Referer": {"https://www.broshura.bg/"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{"Referer": {"stale"}}}
	hooks.onRequest(collyReq)
	assert.Equal(t, []string{"https://www.broshura.bg/"}, collyReq.Headers.Values("Referer"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"image/jpeg"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "image/jpeg", result.ContentType)
	assert.Equal(t, "https://example.com/final", result.URL)

	hooks.onError(&colly.Response{
		StatusCode: http.StatusNotFound,
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/missing")},
	}, errors.New("Not Found"))
	assert.NoError(t, fetchErr)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	hooks.onError(nil, errors.New("boom"))
	require.Error(t, fetchErr)
	assert.Equal(t, "boom", fetchErr.Error())
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func TestFetchReportsFinalURLAndStatus(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>home</html>"))
	})
	mux.HandleFunc("/img/1.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://ref.example/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})
	mux.HandleFunc("/img/2.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/img/3.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second}, nil)
	ctx := context.Background()
	headers := http.Header{"Referer": {"https://ref.example/"}}

	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/img/1.jpg", Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.ContentType)
	assert.Len(t, resp.Body, 3)

	resp, err = f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/img/2.jpg"})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/", resp.URL)

	resp, err = f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/img/3.jpg"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchRejectsTruncatedBodies(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/big.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1000))
	})
	mux.HandleFunc("/chunked.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		for i := 0; i < 10; i++ {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/exact.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second, MaxBodySize: 100}, nil)
	ctx := context.Background()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/big.pdf"})
	require.ErrorIs(t, err, crawler.ErrBodyTooLarge)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/chunked.pdf"})
	require.ErrorIs(t, err, crawler.ErrBodyTooLarge)

	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/exact.pdf"})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 100)
}

func TestFetchHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	f := New(Config{Timeout: time.Minute}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "unknown", statusClass(0))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
