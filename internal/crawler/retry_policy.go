package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"
)

// StatusError reports a response whose status code was not 2xx.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy with sane defaults: three
// attempts, 500ms base delay capped at 5s.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// WithMaxAttempts returns a copy of the policy allowing n attempts in total.
func (p *ExponentialRetryPolicy) WithMaxAttempts(n int) *ExponentialRetryPolicy {
	cp := *p
	if n > 0 {
		cp.maxAttempts = n
	}
	return &cp
}

// ShouldRetry decides whether the error is retryable. attempt counts the
// attempts made so far, starting at 1.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware timer used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// FetchWithRetry fetches req, treating non-2xx responses as errors, and retries
// according to policy. A nil policy means a single attempt.
func FetchWithRetry(
	ctx context.Context,
	fetcher Fetcher,
	policy RetryPolicy,
	sleep SleepFunc,
	req FetchRequest,
) (FetchResponse, error) {
	if sleep == nil {
		sleep = Sleep
	}
	for attempt := 1; ; attempt++ {
		resp, err := fetcher.Fetch(ctx, req)
		if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			err = &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
		}
		if err == nil {
			return resp, nil
		}
		if policy == nil || !policy.ShouldRetry(err, attempt) {
			return FetchResponse{}, fmt.Errorf("fetch %s after %d attempt(s): %w", req.URL, attempt, err)
		}
		if serr := sleep(ctx, policy.Backoff(attempt)); serr != nil {
			return FetchResponse{}, serr
		}
	}
}
