// Package pipeline runs the brochure crawl for one store: resolve, check the
// record store, collect and assemble, persist the blob, then the record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

const (
	defaultConcurrency     = 1
	defaultBrochureTimeout = 15 * time.Minute
	documentContentType    = "application/pdf"
	localURIScheme         = "file://"
)

// Collector acquires the pages behind an asset locator.
type Collector interface {
	Collect(ctx context.Context, loc crawler.AssetLocator) ([]crawler.AssetPage, error)
}

// Assembler turns pages into a document, or validates a downloaded one.
type Assembler interface {
	Assemble(ctx context.Context, pages []crawler.AssetPage) (crawler.Document, error)
	Inspect(ctx context.Context, data []byte) (crawler.Document, error)
}

// Config controls Pipeline behavior.
type Config struct {
	// Concurrency bounds how many brochures are processed at once.
	Concurrency int
	// BrochureTimeout caps the wall time of one brochure.
	BrochureTimeout time.Duration
	// BlobPrefix is prepended to every blob key.
	BlobPrefix string
	// Topic receives BrochureStored events. Empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Pipeline. Publisher is optional.
type Deps struct {
	Collector Collector
	Assembler Assembler
	Records   crawler.RecordStore
	Blobs     crawler.BlobStore
	Publisher crawler.Publisher
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
}

// Pipeline processes brochures for any store. It is safe to run several
// stores through one Pipeline at once.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	// claims holds the brochure ids currently in flight.
	claims sync.Map
}

// BrochureStored is published after a brochure's record is written.
type BrochureStored struct {
	RunID       string    `json:"runId"`
	BrochureID  string    `json:"brochureId"`
	StoreID     string    `json:"storeId"`
	StoreName   string    `json:"storeName"`
	Country     string    `json:"country"`
	Scopes      []string  `json:"cityIds,omitempty"`
	URI         string    `json:"uri"`
	PageCount   int       `json:"pageCount"`
	ContentHash string    `json:"contentHash"`
	ValidFrom   time.Time `json:"startDate"`
	ValidTo     time.Time `json:"endDate"`
	CrawledAt   time.Time `json:"crawledAt"`
}

// New constructs a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Collector == nil:
		return nil, fmt.Errorf("collector is required")
	case deps.Assembler == nil:
		return nil, fmt.Errorf("assembler is required")
	case deps.Records == nil:
		return nil, fmt.Errorf("record store is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BrochureTimeout <= 0 {
		cfg.BrochureTimeout = defaultBrochureTimeout
	}
	cfg.BlobPrefix = strings.Trim(cfg.BlobPrefix, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}, nil
}

// Process resolves every scope of store and crawls the brochures found.
// Per-brochure failures are reported in the summary. The returned error is
// set only when the run itself could not proceed.
func (p *Pipeline) Process(ctx context.Context, resolver crawler.Resolver, store crawler.Store) (crawler.BatchSummary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return crawler.BatchSummary{}, fmt.Errorf("run id: %w", err)
	}
	summary := crawler.BatchSummary{RunID: runID, Store: store, StartedAt: p.deps.Clock.Now()}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("store_id", store.StoreID), zap.String("store", store.Name))

	jobs, failures, err := p.resolve(ctx, resolver, store, logger)
	summary.ScopeFailures = failures
	if err != nil {
		summary.FinishedAt = p.deps.Clock.Now()
		return summary, err
	}
	logger.Info("brochures resolved", zap.Int("brochures", len(jobs)), zap.Int("scope_failures", len(failures)))

	outcomes := make([]crawler.Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			outcomes[i] = p.processBrochure(ctx, runID, store, j, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary.Outcomes = outcomes
	summary.FinishedAt = p.deps.Clock.Now()
	logger.Info("store run finished",
		zap.Int("stored", summary.Count(crawler.StatusStored)),
		zap.Int("already_crawled", summary.Count(crawler.StatusAlreadyCrawled)),
		zap.Int("failed", summary.Count(crawler.StatusFailed)),
		zap.Int("degraded", summary.DegradedCount()),
		zap.Duration("duration", summary.Duration()),
	)
	return summary, nil
}

// job is one unique brochure of a run with every scope that referenced it.
type job struct {
	ref    crawler.BrochureReference
	scopes []string
}

// resolve calls the resolver once per scope and folds references that share
// a brochure id into one job, keeping first-seen order.
func (p *Pipeline) resolve(
	ctx context.Context,
	resolver crawler.Resolver,
	store crawler.Store,
	logger *zap.Logger,
) ([]*job, []crawler.ScopeFailure, error) {
	scopes := store.Scopes
	if len(scopes) == 0 {
		scopes = []string{""}
	}

	var (
		jobs     []*job
		failures []crawler.ScopeFailure
		index    = make(map[string]*job)
	)
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return nil, failures, fmt.Errorf("resolve %s: %w", store.Name, err)
		}
		found, err := resolver.Resolve(ctx, scope)
		if err != nil {
			logger.Warn("scope resolution failed", zap.String("scope", scope), zap.Error(err))
			failures = append(failures, crawler.ScopeFailure{Scope: scope, Err: err})
			continue
		}
		for _, ref := range found {
			if ref.Scope == "" {
				ref.Scope = scope
			}
			if j, ok := index[ref.BrochureID]; ok {
				j.scopes = crawler.MergeScopes(j.scopes, ref.Scope)
				continue
			}
			j := &job{ref: ref, scopes: crawler.MergeScopes(nil, ref.Scope)}
			index[ref.BrochureID] = j
			jobs = append(jobs, j)
		}
	}

	if len(failures) == len(scopes) {
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			errs = append(errs, f.Err)
		}
		return nil, failures, fmt.Errorf("%w: every scope of %s failed: %w", crawler.ErrResolution, store.Name, errors.Join(errs...))
	}
	return jobs, failures, nil
}
