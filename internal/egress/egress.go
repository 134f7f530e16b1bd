// Package egress builds the proxy selection used by the asset fetcher.
package egress

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2/proxy"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// Rotation names how identities are picked.
type Rotation string

const (
	// RoundRobin cycles through every identity, one request at a time.
	RoundRobin Rotation = "round_robin"
	// Random picks one identity for the whole run.
	Random Rotation = "random"
)

// Identity is one outbound proxy.
type Identity struct {
	URL     *url.URL
	Country string
}

// String hides credentials.
func (i Identity) String() string {
	if i.URL == nil {
		return ""
	}
	return i.URL.Redacted()
}

// Provider lists the identities available for a country.
type Provider interface {
	ListIdentities(ctx context.Context, country string) ([]Identity, error)
}

// Static serves a fixed list of proxy URLs.
type Static struct {
	identities []Identity
}

// NewStatic parses raw proxy URLs. Entries without a scheme are treated as http.
func NewStatic(raw []string, country string) (*Static, error) {
	out := make([]Identity, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid proxy %q", crawler.ErrEgressInit, redact(r))
		}
		out = append(out, Identity{URL: u, Country: strings.ToUpper(country)})
	}
	return &Static{identities: out}, nil
}

// ListIdentities implements Provider. The country filter is ignored.
func (s *Static) ListIdentities(context.Context, string) ([]Identity, error) {
	out := make([]Identity, len(s.identities))
	copy(out, s.identities)
	return out, nil
}

// ProxyFunc turns a pool of identities into a request-level proxy selector.
// It is safe for concurrent use.
func ProxyFunc(identities []Identity, rotation Rotation, pick func(n int) int) (func(*http.Request) (*url.URL, error), error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: empty identity pool", crawler.ErrEgressInit)
	}
	switch rotation {
	case RoundRobin, "":
		urls := make([]string, 0, len(identities))
		for _, id := range identities {
			urls = append(urls, id.URL.String())
		}
		fn, err := proxy.RoundRobinProxySwitcher(urls...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrEgressInit, err)
		}
		return fn, nil
	case Random:
		if pick == nil {
			pick = rand.IntN
		}
		return http.ProxyURL(identities[pick(len(identities))].URL), nil
	default:
		return nil, fmt.Errorf("%w: unknown rotation %q", crawler.ErrEgressInit, rotation)
	}
}

// Resolve lists identities from p and builds the selector in one step.
func Resolve(ctx context.Context, p Provider, country string, rotation Rotation) (func(*http.Request) (*url.URL, error), int, error) {
	identities, err := p.ListIdentities(ctx, country)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list identities: %w", crawler.ErrEgressInit, err)
	}
	fn, err := ProxyFunc(identities, rotation, nil)
	if err != nil {
		return nil, 0, err
	}
	return fn, len(identities), nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
