// Package collector acquires the pages of one brochure. Image sequences are
// probed id by id until a run of consecutive failures; image lists and direct
// documents are fetched as given.
package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/metrics"
)

const (
	// DefaultMaxConsecutiveErrors stops a sequence probe after this many misses in a row.
	DefaultMaxConsecutiveErrors = 3
	// DefaultMaxPageIDs is the hard ceiling of ids probed for one brochure.
	DefaultMaxPageIDs = 2000
	// DefaultMinAssetBytes rejects bodies shorter than this.
	DefaultMinAssetBytes = 1024
)

// Policy holds the collector's termination and validation constants.
type Policy struct {
	MaxConsecutiveErrors int
	MaxPageIDs           int
	MinAssetBytes        int
}

// DefaultPolicy returns the policy used by the production crawlers.
func DefaultPolicy() Policy {
	return Policy{
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		MaxPageIDs:           DefaultMaxPageIDs,
		MinAssetBytes:        DefaultMinAssetBytes,
	}
}

// Collector fetches brochure assets through a Fetcher.
type Collector struct {
	fetcher crawler.Fetcher
	pacer   crawler.Pacer
	retry   crawler.RetryPolicy
	sleep   crawler.SleepFunc
	policy  Policy
	logger  *zap.Logger
}

// New constructs a Collector. pacer and retry may be nil.
func New(
	fetcher crawler.Fetcher,
	pacer crawler.Pacer,
	retry crawler.RetryPolicy,
	policy Policy,
	logger *zap.Logger,
) (*Collector, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if policy.MaxConsecutiveErrors <= 0 {
		return nil, fmt.Errorf("max consecutive errors must be > 0")
	}
	if policy.MaxPageIDs <= 0 {
		policy.MaxPageIDs = DefaultMaxPageIDs
	}
	if policy.MinAssetBytes < 0 {
		policy.MinAssetBytes = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fetcher: fetcher,
		pacer:   pacer,
		retry:   retry,
		sleep:   crawler.Sleep,
		policy:  policy,
		logger:  logger,
	}, nil
}

// Collect returns the ordered pages for loc. Page order is fetch order.
func (c *Collector) Collect(ctx context.Context, loc crawler.AssetLocator) ([]crawler.AssetPage, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	switch loc.Kind {
	case crawler.LocatorImageSequence:
		return c.collectSequence(ctx, loc)
	case crawler.LocatorImageList:
		return c.collectList(ctx, loc)
	case crawler.LocatorDirectDocument:
		return c.collectDocument(ctx, loc)
	default:
		return nil, fmt.Errorf("unsupported locator kind %s", loc.Kind)
	}
}

type sequenceState int

const (
	stateCollecting sequenceState = iota
	stateSuccess
	stateExhausted
)

// collectSequence probes BaseURL+id+Suffix from StartID. Every miss still
// advances the id; the probe ends after MaxConsecutiveErrors misses in a row,
// in stateSuccess when pages were collected and stateExhausted otherwise.
func (c *Collector) collectSequence(ctx context.Context, loc crawler.AssetLocator) ([]crawler.AssetPage, error) {
	var (
		pages             []crawler.AssetPage
		consecutiveErrors int
		probed            int
		state             = stateCollecting
	)
	for id := loc.StartID; state == stateCollecting; id++ {
		if probed >= c.policy.MaxPageIDs {
			return nil, fmt.Errorf("%w: probed %d ids from %d", crawler.ErrRunawayPagination, probed, loc.StartID)
		}
		probed++
		pageURL := loc.PageURL(id)
		page, err := c.fetchAsset(ctx, loc, familyImage, pageURL, strconv.Itoa(id), nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("collect sequence: %w", ctxErr)
			}
			consecutiveErrors++
			c.logger.Debug("page probe failed",
				zap.String("url", pageURL),
				zap.Int("page_id", id),
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Error(err),
			)
			if consecutiveErrors >= c.policy.MaxConsecutiveErrors {
				state = stateSuccess
				if len(pages) == 0 {
					state = stateExhausted
				}
			}
			continue
		}
		consecutiveErrors = 0
		pages = append(pages, page)
	}
	if state == stateExhausted {
		return nil, fmt.Errorf("%w: first id %d of %s", crawler.ErrNoAssetsFound, loc.StartID, loc.BaseURL)
	}
	c.logger.Debug("sequence collected",
		zap.String("base_url", loc.BaseURL),
		zap.Int("pages", len(pages)),
		zap.Int("probed", probed),
	)
	return pages, nil
}

// collectList fetches every URL in order, skipping failures.
func (c *Collector) collectList(ctx context.Context, loc crawler.AssetLocator) ([]crawler.AssetPage, error) {
	pages := make([]crawler.AssetPage, 0, len(loc.URLs))
	for i, u := range loc.URLs {
		page, err := c.fetchAsset(ctx, loc, familyImage, u, strconv.Itoa(i+1), nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("collect list: %w", ctxErr)
			}
			c.logger.Warn("list page skipped", zap.String("url", u), zap.Error(err))
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: none of %d listed pages", crawler.ErrNoAssetsFound, len(loc.URLs))
	}
	return pages, nil
}

// collectDocument downloads a single PDF, retrying transient failures.
func (c *Collector) collectDocument(ctx context.Context, loc crawler.AssetLocator) ([]crawler.AssetPage, error) {
	page, err := c.fetchAsset(ctx, loc, familyDocument, loc.URL, "1", c.retry)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			return nil, fmt.Errorf("%w: %s", crawler.ErrNoAssetsFound, err.Error())
		}
		return nil, err
	}
	return []crawler.AssetPage{page}, nil
}

func (c *Collector) fetchAsset(
	ctx context.Context,
	loc crawler.AssetLocator,
	fam family,
	rawURL string,
	sequenceID string,
	retry crawler.RetryPolicy,
) (crawler.AssetPage, error) {
	req := crawler.FetchRequest{URL: rawURL, Headers: loc.Headers()}
	for attempt := 1; ; attempt++ {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx, rawURL); err != nil {
				return crawler.AssetPage{}, err
			}
		}
		resp, err := c.fetcher.Fetch(ctx, req)
		if err == nil {
			if rej := classify(loc, fam, c.policy.MinAssetBytes, resp); rej != nil {
				metrics.ObserveAsset(rawURL, rej.reason)
				if retry != nil && rej.reason == "status" && retry.ShouldRetry(&crawler.StatusError{URL: rawURL, StatusCode: resp.StatusCode}, attempt) {
					if serr := c.sleep(ctx, retry.Backoff(attempt)); serr != nil {
						return crawler.AssetPage{}, serr
					}
					continue
				}
				return crawler.AssetPage{}, rej
			}
			metrics.ObserveAsset(rawURL, "ok")
			return crawler.AssetPage{
				SequenceID:  sequenceID,
				URL:         rawURL,
				ContentType: mediaType(resp.ContentType),
				Data:        resp.Body,
			}, nil
		}
		metrics.ObserveAsset(rawURL, "transport")
		if retry == nil || !retry.ShouldRetry(err, attempt) {
			return crawler.AssetPage{}, fmt.Errorf("%w: %s: %w", crawler.ErrAssetFetch, rawURL, err)
		}
		if serr := c.sleep(ctx, retry.Backoff(attempt)); serr != nil {
			return crawler.AssetPage{}, serr
		}
	}
}
