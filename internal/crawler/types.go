package crawler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// LocatorKind tells the pipeline how a brochure's assets are acquired.
type LocatorKind int

const (
	// LocatorDirectDocument is a single ready-made PDF.
	LocatorDirectDocument LocatorKind = iota + 1
	// LocatorImageSequence is a numbered run of page images probed by id.
	LocatorImageSequence
	// LocatorImageList is an explicit ordered list of page image URLs.
	LocatorImageList
)

// String returns the lowercase name of the locator kind.
func (k LocatorKind) String() string {
	switch k {
	case LocatorDirectDocument:
		return "direct_document"
	case LocatorImageSequence:
		return "image_sequence"
	case LocatorImageList:
		return "image_list"
	default:
		return "unknown"
	}
}

// AssetLocator describes where the pages of one brochure live.
type AssetLocator struct {
	Kind LocatorKind

	// URL is set for LocatorDirectDocument.
	URL string

	// BaseURL, StartID and Suffix are set for LocatorImageSequence. Page n
	// lives at BaseURL + n + Suffix.
	BaseURL string
	StartID int
	Suffix  string

	// URLs is set for LocatorImageList.
	URLs []string

	// NotFoundURLs are redirect targets that mean the asset does not exist.
	NotFoundURLs []string
	Referer      string
	Accept       string
}

// PageURL derives the URL of the page with the given numeric id.
func (l AssetLocator) PageURL(id int) string {
	return l.BaseURL + strconv.Itoa(id) + l.Suffix
}

// Headers returns the request header overrides carried by the locator.
func (l AssetLocator) Headers() http.Header {
	h := http.Header{}
	if l.Referer != "" {
		h.Set("Referer", l.Referer)
	}
	if l.Accept != "" {
		h.Set("Accept", l.Accept)
	}
	return h
}

// IsNotFound reports whether finalURL is one of the locator's "missing" redirect targets.
func (l AssetLocator) IsNotFound(finalURL string) bool {
	for _, u := range l.NotFoundURLs {
		if strings.TrimRight(u, "/") == strings.TrimRight(finalURL, "/") {
			return true
		}
	}
	return false
}

// Validate checks that the fields required by the locator kind are present.
func (l AssetLocator) Validate() error {
	switch l.Kind {
	case LocatorDirectDocument:
		if strings.TrimSpace(l.URL) == "" {
			return fmt.Errorf("direct document locator requires a url")
		}
	case LocatorImageSequence:
		if strings.TrimSpace(l.BaseURL) == "" {
			return fmt.Errorf("image sequence locator requires a base url")
		}
		if l.StartID < 0 {
			return fmt.Errorf("image sequence start id must be >= 0")
		}
	case LocatorImageList:
		if len(l.URLs) == 0 {
			return fmt.Errorf("image list locator requires at least one url")
		}
	default:
		return fmt.Errorf("unknown locator kind %d", l.Kind)
	}
	return nil
}

// BrochureReference is what a resolver hands to the pipeline for one brochure.
// It is created fresh on every resolution and never mutated afterwards.
type BrochureReference struct {
	BrochureID string
	ValidFrom  time.Time
	ValidTo    time.Time
	Locator    AssetLocator
	// Scope is the resolver scope (city, listing page) that produced the reference.
	Scope string
}

// Validate enforces the reference invariants.
func (r BrochureReference) Validate() error {
	if strings.TrimSpace(r.BrochureID) == "" {
		return fmt.Errorf("brochure id is required")
	}
	if r.ValidFrom.IsZero() || r.ValidTo.IsZero() {
		return fmt.Errorf("brochure %s: validity window is required", r.BrochureID)
	}
	if r.ValidFrom.After(r.ValidTo) {
		return fmt.Errorf("brochure %s: valid from %s is after valid to %s",
			r.BrochureID, r.ValidFrom.Format(time.RFC3339), r.ValidTo.Format(time.RFC3339))
	}
	if err := r.Locator.Validate(); err != nil {
		return fmt.Errorf("brochure %s: %w", r.BrochureID, err)
	}
	return nil
}

// Store identifies the retailer a pipeline run works for.
type Store struct {
	// Name is the unique crawler name, e.g. "broshura-lidl".
	Name    string
	StoreID string
	Country string
	// Scopes are passed to the resolver one by one. An empty list means a
	// single unnamed scope.
	Scopes []string
}

// CrawlRecord is the durable marker that a brochure has been crawled.
type CrawlRecord struct {
	BrochureID       string    `firestore:"brochureId" json:"brochureId"`
	StoreID          string    `firestore:"storeId" json:"storeId"`
	Country          string    `firestore:"country" json:"country"`
	Scopes           []string  `firestore:"cityIds,omitempty" json:"cityIds,omitempty"`
	CrawledAt        time.Time `firestore:"crawledAt" json:"crawledAt"`
	ValidFrom        time.Time `firestore:"startDate" json:"startDate"`
	ValidTo          time.Time `firestore:"endDate" json:"endDate"`
	Filename         string    `firestore:"filename" json:"filename"`
	ImageCount       int       `firestore:"imageCount" json:"imageCount"`
	SkippedPages     int       `firestore:"skippedPages,omitempty" json:"skippedPages,omitempty"`
	CloudStoragePath string    `firestore:"cloudStoragePath,omitempty" json:"cloudStoragePath,omitempty"`
	ContentHash      string    `firestore:"contentHash,omitempty" json:"contentHash,omitempty"`
}

// RecordPatch carries the fields Patch may change. Nil means untouched.
type RecordPatch struct {
	CloudStoragePath *string
	ImageCount       *int
	Scopes           []string
}

// Empty reports whether the patch changes nothing.
func (p RecordPatch) Empty() bool {
	return p.CloudStoragePath == nil && p.ImageCount == nil && len(p.Scopes) == 0
}

// Apply returns rec with the patch applied.
func (p RecordPatch) Apply(rec CrawlRecord) CrawlRecord {
	if p.CloudStoragePath != nil {
		rec.CloudStoragePath = *p.CloudStoragePath
	}
	if p.ImageCount != nil {
		rec.ImageCount = *p.ImageCount
	}
	if len(p.Scopes) > 0 {
		rec.Scopes = MergeScopes(rec.Scopes, p.Scopes...)
	}
	return rec
}

// MergeScopes appends the non-empty scopes not already present, keeping order.
func MergeScopes(existing []string, scopes ...string) []string {
	out := append([]string(nil), existing...)
	for _, s := range scopes {
		if s == "" {
			continue
		}
		found := false
		for _, e := range out {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// AssetPage is one fetched page held in memory for a single crawl.
type AssetPage struct {
	SequenceID  string
	URL         string
	ContentType string
	Data        []byte
}

// Document is an assembled (or downloaded) brochure PDF.
type Document struct {
	Data         []byte
	PageCount    int
	SkippedPages int
	// PageIDs lists the sequence ids that made it into the document, in page order.
	PageIDs []string
}

// FetchRequest describes a single GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is what a Fetcher reports back. URL is the final URL after redirects.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}
