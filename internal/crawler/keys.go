package crawler

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const keyDateLayout = "02.01.2006"

// FormatKeyDate renders t as DD.MM.YYYY in UTC.
func FormatKeyDate(t time.Time) string {
	return t.UTC().Format(keyDateLayout)
}

// Filename is the document file name for a brochure:
// <storeId>_<country>_<DD.MM.YYYY>_<DD.MM.YYYY>_<brochureId>.pdf.
func Filename(storeID, country string, from, to time.Time, brochureID string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s.pdf",
		storeID, country, FormatKeyDate(from), FormatKeyDate(to), sanitizeKeyPart(brochureID))
}

// BlobKey is the deterministic object key for a brochure. The same logical
// brochure maps to the same key on every run, so a retried upload overwrites.
func BlobKey(prefix, storeID, country string, from, to time.Time, brochureID string) string {
	name := path.Join("brochures", Filename(storeID, country, from, to, brochureID))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func sanitizeKeyPart(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", " ", "-").Replace(s)
}
