package retailers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]crawler.FetchResponse
	requests  []crawler.FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string][]crawler.FetchResponse)}
}

// page queues a 200 HTML response for rawURL.
func (f *fakeFetcher) page(rawURL, body string) *fakeFetcher {
	return f.respond(rawURL, crawler.FetchResponse{StatusCode: http.StatusOK, ContentType: "text/html", Body: []byte(body)})
}

// respond queues resp for rawURL. The last queued response repeats.
func (f *fakeFetcher) respond(rawURL string, resp crawler.FetchResponse) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[rawURL] = append(f.responses[rawURL], resp)
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	queue := f.responses[req.URL]
	if len(queue) == 0 {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[req.URL] = queue[1:]
	}
	if resp.URL == "" {
		resp.URL = req.URL
	}
	return resp, nil
}

func (f *fakeFetcher) calls(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.URL == rawURL {
			n++
		}
	}
	return n
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// thursday is 2025-07-10, inside ISO week 28.
var thursday = fixedClock(time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC))

func newTestClient(f crawler.Fetcher) *Client {
	c := NewClient(f, nil, crawler.NewExponentialRetryPolicy(), zap.NewNop())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOf(y int, m time.Month, d int) time.Time {
	return crawler.EndOfDay(day(y, m, d))
}
