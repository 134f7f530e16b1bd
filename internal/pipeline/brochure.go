package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/metrics"
)

// processBrochure runs one brochure to a terminal outcome. It never panics
// the batch and never returns an error; failures land in the outcome.
func (p *Pipeline) processBrochure(
	ctx context.Context,
	runID string,
	store crawler.Store,
	j *job,
	logger *zap.Logger,
) (out crawler.Outcome) {
	ref := j.ref
	out = crawler.Outcome{BrochureID: ref.BrochureID, StoreID: store.StoreID, Scopes: j.scopes}
	logger = logger.With(zap.String("brochure_id", ref.BrochureID))

	metrics.IncActiveWorkers()
	defer func() {
		metrics.DecActiveWorkers()
		metrics.ObserveBrochure(store.StoreID, string(out.Status))
		if out.Status == crawler.StatusFailed {
			logger.Error("brochure failed", zap.Strings("scope", out.Scopes), zap.Error(out.Err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			out = failed(out, fmt.Errorf("brochure %s panicked: %v", ref.BrochureID, r))
		}
	}()

	if _, loaded := p.claims.LoadOrStore(ref.BrochureID, runID); loaded {
		logger.Info("brochure claimed by another worker")
		out.Status = crawler.StatusAlreadyCrawled
		return out
	}
	defer p.claims.Delete(ref.BrochureID)

	if err := ctx.Err(); err != nil {
		return failed(out, err)
	}
	if err := ref.Validate(); err != nil {
		return failed(out, fmt.Errorf("%w: %w", crawler.ErrResolution, err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.BrochureTimeout)
	defer cancel()

	existing, err := p.deps.Records.Get(ctx, ref.BrochureID)
	switch {
	case err == nil:
		return p.alreadyCrawled(ctx, out, existing, logger)
	case !errors.Is(err, crawler.ErrRecordNotFound):
		return failed(out, fmt.Errorf("%w: get record: %w", crawler.ErrStorage, err))
	}

	doc, err := p.acquire(ctx, ref)
	if err != nil {
		return failed(out, err)
	}
	out.PageCount = doc.PageCount
	out.SkippedPages = doc.SkippedPages
	if doc.SkippedPages > 0 {
		metrics.ObserveSkippedPages(store.StoreID, doc.SkippedPages)
		logger.Warn("brochure assembled with skipped pages",
			zap.Int("pages", doc.PageCount),
			zap.Int("skipped", doc.SkippedPages),
		)
	}

	hash, err := p.deps.Hasher.Hash(doc.Data)
	if err != nil {
		return failed(out, fmt.Errorf("hash document: %w", err))
	}

	key := crawler.BlobKey(p.cfg.BlobPrefix, store.StoreID, store.Country, ref.ValidFrom, ref.ValidTo, ref.BrochureID)
	uri, exists, err := p.deps.Blobs.Exists(ctx, key)
	if err != nil {
		return failed(out, fmt.Errorf("%w: blob exists %s: %w", crawler.ErrStorage, key, err))
	}
	if exists {
		out.UploadSkipped = true
		logger.Info("blob already present, skipping upload", zap.String("path", uri))
	} else {
		uri, err = p.deps.Blobs.PutObject(ctx, key, documentContentType, doc.Data)
		if err != nil {
			return failed(out, fmt.Errorf("%w: put blob %s: %w", crawler.ErrStorage, key, err))
		}
	}
	out.Path = uri

	record := crawler.CrawlRecord{
		BrochureID:   ref.BrochureID,
		StoreID:      store.StoreID,
		Country:      store.Country,
		Scopes:       j.scopes,
		CrawledAt:    p.deps.Clock.Now(),
		ValidFrom:    ref.ValidFrom,
		ValidTo:      ref.ValidTo,
		Filename:     crawler.Filename(store.StoreID, store.Country, ref.ValidFrom, ref.ValidTo, ref.BrochureID),
		ImageCount:   doc.PageCount,
		SkippedPages: doc.SkippedPages,
		ContentHash:  hash,
	}
	if !strings.HasPrefix(uri, localURIScheme) {
		record.CloudStoragePath = uri
	}

	if err := p.deps.Records.Put(ctx, record); err != nil {
		if errors.Is(err, crawler.ErrRecordExists) {
			logger.Info("record written concurrently, treating as crawled")
			winner, gerr := p.deps.Records.Get(ctx, ref.BrochureID)
			if gerr != nil {
				logger.Warn("reading concurrently written record failed", zap.Error(gerr))
				out.Status = crawler.StatusAlreadyCrawled
				return out
			}
			return p.alreadyCrawled(ctx, out, winner, logger)
		}
		return failed(out, fmt.Errorf("%w: put record: %w", crawler.ErrStorage, err))
	}

	out.Status = crawler.StatusStored
	out.Record = &record
	logger.Info("brochure stored",
		zap.String("path", uri),
		zap.Int("pages", doc.PageCount),
		zap.Bool("upload_skipped", out.UploadSkipped),
	)
	p.publish(ctx, runID, store, record, uri, logger)
	return out
}

// acquire produces the finished document for ref.
func (p *Pipeline) acquire(ctx context.Context, ref crawler.BrochureReference) (crawler.Document, error) {
	pages, err := p.deps.Collector.Collect(ctx, ref.Locator)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("collect: %w", err)
	}
	if ref.Locator.Kind == crawler.LocatorDirectDocument {
		if len(pages) == 0 {
			return crawler.Document{}, crawler.ErrNoAssetsFound
		}
		doc, err := p.deps.Assembler.Inspect(ctx, pages[0].Data)
		if err != nil {
			return crawler.Document{}, fmt.Errorf("inspect document: %w", err)
		}
		return doc, nil
	}
	doc, err := p.deps.Assembler.Assemble(ctx, pages)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("assemble: %w", err)
	}
	return doc, nil
}

// alreadyCrawled reports an existing record and adds any scopes the record
// does not list yet.
func (p *Pipeline) alreadyCrawled(
	ctx context.Context,
	out crawler.Outcome,
	existing crawler.CrawlRecord,
	logger *zap.Logger,
) crawler.Outcome {
	out.Status = crawler.StatusAlreadyCrawled
	out.Path = existing.CloudStoragePath
	merged := crawler.MergeScopes(existing.Scopes, out.Scopes...)
	if len(merged) > len(existing.Scopes) {
		added := merged[len(existing.Scopes):]
		if err := p.deps.Records.Patch(ctx, existing.BrochureID, crawler.RecordPatch{Scopes: added}); err != nil {
			logger.Warn("adding scopes to existing record failed", zap.Strings("scope", added), zap.Error(err))
		} else {
			existing.Scopes = merged
		}
	}
	out.Record = &existing
	logger.Info("brochure already crawled", zap.Time("crawled_at", existing.CrawledAt))
	return out
}

func (p *Pipeline) publish(
	ctx context.Context,
	runID string,
	store crawler.Store,
	record crawler.CrawlRecord,
	uri string,
	logger *zap.Logger,
) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	event := BrochureStored{
		RunID:       runID,
		BrochureID:  record.BrochureID,
		StoreID:     record.StoreID,
		StoreName:   store.Name,
		Country:     record.Country,
		Scopes:      record.Scopes,
		URI:         uri,
		PageCount:   record.ImageCount,
		ContentHash: record.ContentHash,
		ValidFrom:   record.ValidFrom,
		ValidTo:     record.ValidTo,
		CrawledAt:   record.CrawledAt,
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish brochure event failed", zap.Error(err))
		return
	}
	logger.Debug("brochure event published", zap.String("message_id", id))
}

func failed(out crawler.Outcome, err error) crawler.Outcome {
	out.Status = crawler.StatusFailed
	out.Err = err
	return out
}
