package collector

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// family is the set of content types an asset may have.
type family int

const (
	familyImage family = iota
	familyDocument
)

// rejection explains why a fetch result is not a usable asset.
type rejection struct {
	reason string
	detail string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.reason, r.detail)
}

func (r *rejection) Unwrap() error {
	return crawler.ErrAssetFetch
}

// classify returns nil when resp is a usable asset of the given family.
func classify(loc crawler.AssetLocator, fam family, minBytes int, resp crawler.FetchResponse) *rejection {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &rejection{reason: "status", detail: fmt.Sprintf("%d", resp.StatusCode)}
	}
	if resp.URL != "" && loc.IsNotFound(resp.URL) {
		return &rejection{reason: "not_found_redirect", detail: resp.URL}
	}
	contentType := mediaType(resp.ContentType)
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(resp.Body))
	}
	if !accepts(fam, contentType, resp.Body) {
		return &rejection{reason: "content_type", detail: contentType}
	}
	if len(resp.Body) < minBytes {
		return &rejection{reason: "too_small", detail: fmt.Sprintf("%d bytes", len(resp.Body))}
	}
	return nil
}

func accepts(fam family, contentType string, body []byte) bool {
	switch fam {
	case familyImage:
		return strings.HasPrefix(contentType, "image/")
	case familyDocument:
		switch contentType {
		case "application/pdf":
			return true
		case "application/octet-stream", "binary/octet-stream":
			return bytes.HasPrefix(body, []byte("%PDF"))
		}
	}
	return false
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return strings.ToLower(mt)
}
