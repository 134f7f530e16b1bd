package crawler

import "time"

// OutcomeStatus is the terminal state of one brochure in a run.
type OutcomeStatus string

const (
	// StatusStored means the document was stored and the record written.
	StatusStored OutcomeStatus = "stored"
	// StatusAlreadyCrawled means a record already existed and nothing was fetched.
	StatusAlreadyCrawled OutcomeStatus = "already_crawled"
	// StatusFailed means the brochure could not be completed this run.
	StatusFailed OutcomeStatus = "failed"
)

// Outcome reports what happened to one brochure id.
type Outcome struct {
	BrochureID   string
	StoreID      string
	Scopes       []string
	Status       OutcomeStatus
	Path         string
	Record       *CrawlRecord
	PageCount    int
	SkippedPages int
	// UploadSkipped is set when the blob already existed under the target key.
	UploadSkipped bool
	Err           error
}

// Degraded reports whether some pages were dropped while assembling.
func (o Outcome) Degraded() bool {
	return o.SkippedPages > 0
}

// ScopeFailure records a scope whose resolution failed.
type ScopeFailure struct {
	Scope string
	Err   error
}

// BatchSummary aggregates the outcomes of one pipeline run.
type BatchSummary struct {
	RunID         string
	Store         Store
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcomes      []Outcome
	ScopeFailures []ScopeFailure
}

// Count returns how many outcomes have the given status.
func (s BatchSummary) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// DegradedCount returns how many stored brochures lost pages during assembly.
func (s BatchSummary) DegradedCount() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == StatusStored && o.Degraded() {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (s BatchSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
