// Package politeness spaces out outbound requests per origin: a token bucket
// caps the request rate and a random delay separates consecutive requests to
// the same host.
package politeness

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/metrics"
)

// Config holds pacer configuration.
type Config struct {
	// DelayMin and DelayMax bound the random pause between two requests to the same host.
	DelayMin time.Duration
	DelayMax time.Duration
	// RPS caps requests per second per host. Zero disables the cap.
	RPS float64
}

// Pacer manages per-host limits and delays.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	// last is the release time of the latest slot handed out per host.
	last   map[string]time.Time
	now    func() time.Time
	limit  rate.Limit
	min    time.Duration
	max    time.Duration
	sleep  crawler.SleepFunc
	jitter func(limit time.Duration) time.Duration
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithSleep replaces the blocking sleep, mainly for tests.
func WithSleep(sleep crawler.SleepFunc) Option {
	return func(p *Pacer) {
		p.sleep = sleep
	}
}

// WithNow replaces the clock used to schedule slots, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pacer) {
		p.now = now
	}
}

// WithJitter replaces the random source for the delay, mainly for tests.
func WithJitter(jitter func(limit time.Duration) time.Duration) Option {
	return func(p *Pacer) {
		p.jitter = jitter
	}
}

// New creates a Pacer.
func New(cfg Config, opts ...Option) (*Pacer, error) {
	if cfg.DelayMin < 0 || cfg.DelayMax < 0 {
		return nil, fmt.Errorf("politeness delays must be >= 0")
	}
	if cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("politeness delay max %s is below min %s", cfg.DelayMax, cfg.DelayMin)
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	p := &Pacer{
		limiters: make(map[string]*rate.Limiter),
		last:     make(map[string]time.Time),
		now:      time.Now,
		limit:    limit,
		min:      cfg.DelayMin,
		max:      cfg.DelayMax,
		sleep:    crawler.Sleep,
		jitter:   randomJitter,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Wait blocks until a request to rawURL may be sent. The first request to a
// host only passes the rate limiter. Every later one gets a slot at least a
// random delay in [DelayMin, DelayMax] after the previous slot for that host,
// so concurrent callers are spaced out rather than released together.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	p.mu.Lock()
	limiter, exists := p.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(p.limit, 1)
		p.limiters[host] = limiter
	}
	now := p.now()
	slot := now
	if prev, visited := p.last[host]; visited {
		if prev.After(slot) {
			slot = prev
		}
		slot = slot.Add(p.min + p.jitter(p.max-p.min))
	}
	p.last[host] = slot
	p.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return fmt.Errorf("politeness delay: %w", err)
		}
		metrics.ObservePolitenessDelay(host, wait)
	}
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePolitenessDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
