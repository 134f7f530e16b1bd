package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlobKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	to := EndOfDay(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC))

	key := BlobKey("", "lidl-bg", "bg", from, to, "lidl-bg-2025-07-10")
	assert.Equal(t, "brochures/lidl-bg_bg_10.07.2025_16.07.2025_lidl-bg-2025-07-10.pdf", key)
	assert.Equal(t, key, BlobKey("/", "lidl-bg", "bg", from, to, "lidl-bg-2025-07-10"))

	prefixed := BlobKey("/prod/", "lidl-bg", "bg", from, to, "lidl-bg-2025-07-10")
	assert.Equal(t, "prod/brochures/lidl-bg_bg_10.07.2025_16.07.2025_lidl-bg-2025-07-10.pdf", prefixed)
}

func TestFilenameSanitizesBrochureID(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	name := Filename("cba-bg", "bg", from, from, "a/b c")
	assert.Equal(t, "cba-bg_bg_02.01.2025_02.01.2025_a-b-c.pdf", name)
}

func TestFormatKeyDateUsesUTC(t *testing.T) {
	t.Parallel()

	sofia := time.FixedZone("EEST", 3*60*60)
	ts := time.Date(2025, 7, 10, 1, 0, 0, 0, sofia)
	assert.Equal(t, "09.07.2025", FormatKeyDate(ts))
}
