package retailers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

const (
	htmlAccept     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	imageAccept    = "image/webp,image/apng,image/*,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
)

// Client fetches listing pages for resolvers. Every attempt waits on the
// pacer, and transient failures are retried by the retry policy.
type Client struct {
	fetcher crawler.Fetcher
	retry   crawler.RetryPolicy
	sleep   crawler.SleepFunc
	logger  *zap.Logger
}

// NewClient wires a Client. A nil pacer disables pacing, a nil policy
// falls back to crawler.NewExponentialRetryPolicy.
func NewClient(fetcher crawler.Fetcher, pacer crawler.Pacer, retry crawler.RetryPolicy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy()
	}
	if pacer != nil {
		fetcher = pacedFetcher{next: fetcher, pacer: pacer}
	}
	return &Client{fetcher: fetcher, retry: retry, sleep: crawler.Sleep, logger: logger}
}

type pacedFetcher struct {
	next  crawler.Fetcher
	pacer crawler.Pacer
}

func (p pacedFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := p.pacer.Wait(ctx, req.URL); err != nil {
		return crawler.FetchResponse{}, err
	}
	return p.next.Fetch(ctx, req)
}

func (c *Client) get(ctx context.Context, rawURL string, headers http.Header) (crawler.FetchResponse, error) {
	h := http.Header{}
	h.Set("Accept", htmlAccept)
	h.Set("Accept-Language", acceptLanguage)
	for k, vs := range headers {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	resp, err := crawler.FetchWithRetry(ctx, c.fetcher, c.retry, c.sleep, crawler.FetchRequest{URL: rawURL, Headers: h})
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	c.logger.Debug("listing fetched",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
	)
	return resp, nil
}

func (c *Client) document(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	resp, err := c.get(ctx, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	final := resp.URL
	if final == "" {
		final = rawURL
	}
	base, err := url.Parse(final)
	if err != nil {
		return nil, nil, fmt.Errorf("parse url %s: %w", final, err)
	}
	return doc, base, nil
}

func (c *Client) json(ctx context.Context, rawURL string, v any) error {
	h := http.Header{}
	h.Set("Accept", "application/json")
	resp, err := c.get(ctx, rawURL, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", crawler.ErrResolution, rawURL, err)
	}
	return nil
}

// absolute resolves href against base.
func absolute(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
