package crawler

import "errors"

var (
	// ErrResolution means retailer markup or payload did not have the expected shape.
	ErrResolution = errors.New("brochure resolution failed")
	// ErrAssetFetch marks a single page or document fetch that failed or was rejected.
	ErrAssetFetch = errors.New("asset fetch failed")
	// ErrBodyTooLarge means a response exceeded the fetcher's body limit and was cut short.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
	// ErrNoAssetsFound means the collector finished without a single usable page.
	ErrNoAssetsFound = errors.New("no assets found")
	// ErrRunawayPagination means the collector hit its page id ceiling.
	ErrRunawayPagination = errors.New("pagination exceeded page id ceiling")
	// ErrEmptyDocument means there was nothing left to assemble.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrStorage wraps blob and record store failures.
	ErrStorage = errors.New("storage failure")
	// ErrRecordExists is returned by RecordStore.Put for a duplicate brochure id.
	ErrRecordExists = errors.New("crawl record already exists")
	// ErrRecordNotFound is returned by RecordStore.Get and Patch for an unknown brochure id.
	ErrRecordNotFound = errors.New("crawl record not found")
	// ErrEgressInit means no usable egress identity could be configured.
	ErrEgressInit = errors.New("egress initialization failed")
	// ErrSecret means a secret could not be retrieved.
	ErrSecret = errors.New("secret retrieval failed")
)
