// Package firestore stores crawl records in a Firestore collection, one
// document per brochure id.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// DefaultCollection is the collection the crawlers have always written to.
const DefaultCollection = "crawled_brochures"

// Config selects the project and collection.
type Config struct {
	ProjectID  string
	Collection string
}

// RecordStore implements crawler.RecordStore on Firestore.
type RecordStore struct {
	client     *firestore.Client
	collection string
}

// NewClient opens a Firestore client for cfg.ProjectID.
func NewClient(ctx context.Context, cfg Config) (*firestore.Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client *firestore.Client, cfg Config) (*RecordStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &RecordStore{client: client, collection: collection}, nil
}

func (s *RecordStore) doc(brochureID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(brochureID)
}

// Get reads the record document for brochureID.
func (s *RecordStore) Get(ctx context.Context, brochureID string) (crawler.CrawlRecord, error) {
	if brochureID == "" {
		return crawler.CrawlRecord{}, fmt.Errorf("brochure id is required")
	}
	snap, err := s.doc(brochureID).Get(ctx)
	if err != nil {
		return crawler.CrawlRecord{}, translate(err, brochureID)
	}
	var rec crawler.CrawlRecord
	if err := snap.DataTo(&rec); err != nil {
		return crawler.CrawlRecord{}, fmt.Errorf("decode record %s: %w", brochureID, err)
	}
	if rec.BrochureID == "" {
		rec.BrochureID = snap.Ref.ID
	}
	return rec, nil
}

// Put creates the document. Firestore rejects a second create for the same id.
func (s *RecordStore) Put(ctx context.Context, record crawler.CrawlRecord) error {
	if record.BrochureID == "" {
		return fmt.Errorf("brochure id is required")
	}
	if _, err := s.doc(record.BrochureID).Create(ctx, record); err != nil {
		return translate(err, record.BrochureID)
	}
	return nil
}

// Patch updates the given fields of an existing document.
func (s *RecordStore) Patch(ctx context.Context, brochureID string, patch crawler.RecordPatch) error {
	updates := updatesFor(patch)
	if len(updates) == 0 {
		return nil
	}
	if _, err := s.doc(brochureID).Update(ctx, updates); err != nil {
		return translate(err, brochureID)
	}
	return nil
}

// ListByStore returns the newest records for a store and country.
func (s *RecordStore) ListByStore(ctx context.Context, storeID, country string, limit int) ([]crawler.CrawlRecord, error) {
	q := s.client.Collection(s.collection).
		Where("storeId", "==", storeID).
		Where("country", "==", country).
		OrderBy("crawledAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	it := q.Documents(ctx)
	defer it.Stop()

	var out []crawler.CrawlRecord
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		var rec crawler.CrawlRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", snap.Ref.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes the document, failing when it does not exist.
func (s *RecordStore) Delete(ctx context.Context, brochureID string) error {
	if _, err := s.doc(brochureID).Delete(ctx, firestore.Exists); err != nil {
		return translate(err, brochureID)
	}
	return nil
}

func updatesFor(patch crawler.RecordPatch) []firestore.Update {
	var updates []firestore.Update
	if patch.CloudStoragePath != nil {
		updates = append(updates, firestore.Update{Path: "cloudStoragePath", Value: *patch.CloudStoragePath})
	}
	if patch.ImageCount != nil {
		updates = append(updates, firestore.Update{Path: "imageCount", Value: *patch.ImageCount})
	}
	if len(patch.Scopes) > 0 {
		scopes := make([]interface{}, 0, len(patch.Scopes))
		for _, s := range patch.Scopes {
			scopes = append(scopes, s)
		}
		updates = append(updates, firestore.Update{Path: "cityIds", Value: firestore.ArrayUnion(scopes...)})
	}
	return updates
}

// translate maps gRPC status codes onto the record store sentinels.
func translate(err error, brochureID string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", crawler.ErrRecordExists, brochureID)
	default:
		return fmt.Errorf("firestore %s: %w", brochureID, err)
	}
}
