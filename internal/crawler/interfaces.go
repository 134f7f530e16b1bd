package crawler

import (
	"context"
	"time"
)

// Resolver turns one scope of a retailer into the brochures currently on offer.
type Resolver interface {
	Resolve(ctx context.Context, scope string) ([]BrochureReference, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, scope string) ([]BrochureReference, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, scope string) ([]BrochureReference, error) {
	return f(ctx, scope)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RecordStore persists crawl records keyed by brochure id.
type RecordStore interface {
	// Get returns ErrRecordNotFound when no record exists.
	Get(ctx context.Context, brochureID string) (CrawlRecord, error)
	// Put creates a record and returns ErrRecordExists when one is already present.
	Put(ctx context.Context, record CrawlRecord) error
	Patch(ctx context.Context, brochureID string, patch RecordPatch) error
	ListByStore(ctx context.Context, storeID, country string, limit int) ([]CrawlRecord, error)
	Delete(ctx context.Context, brochureID string) error
}

// BlobStore writes finished documents and reports on existing ones.
type BlobStore interface {
	// Exists returns the locator of the object at key and whether it is present.
	Exists(ctx context.Context, key string) (string, bool, error)
	PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer blocks until a request to rawURL may be sent.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// RetryPolicy decides whether and when a failed request is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
