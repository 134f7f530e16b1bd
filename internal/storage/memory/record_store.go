package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// RecordStore keeps crawl records keyed by brochure id.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]crawler.CrawlRecord
}

// NewRecordStore returns an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]crawler.CrawlRecord)}
}

// Get returns the record for brochureID.
func (s *RecordStore) Get(_ context.Context, brochureID string) (crawler.CrawlRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[brochureID]
	if !ok {
		return crawler.CrawlRecord{}, fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	return cloneRecord(rec), nil
}

// Put creates the record; the first writer wins.
func (s *RecordStore) Put(_ context.Context, record crawler.CrawlRecord) error {
	if record.BrochureID == "" {
		return fmt.Errorf("brochure id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.BrochureID]; ok {
		return fmt.Errorf("%w: %s", crawler.ErrRecordExists, record.BrochureID)
	}
	s.records[record.BrochureID] = cloneRecord(record)
	return nil
}

// Patch updates selected fields of an existing record.
func (s *RecordStore) Patch(_ context.Context, brochureID string, patch crawler.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[brochureID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	s.records[brochureID] = patch.Apply(rec)
	return nil
}

// ListByStore returns the newest records for a store and country.
func (s *RecordStore) ListByStore(_ context.Context, storeID, country string, limit int) ([]crawler.CrawlRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.CrawlRecord
	for _, rec := range s.records {
		if rec.StoreID == storeID && rec.Country == country {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CrawledAt.Equal(out[j].CrawledAt) {
			return out[i].BrochureID < out[j].BrochureID
		}
		return out[i].CrawledAt.After(out[j].CrawledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes the record for brochureID.
func (s *RecordStore) Delete(_ context.Context, brochureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[brochureID]; !ok {
		return fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	delete(s.records, brochureID)
	return nil
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(rec crawler.CrawlRecord) crawler.CrawlRecord {
	rec.Scopes = append([]string(nil), rec.Scopes...)
	return rec
}
