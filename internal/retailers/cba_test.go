package retailers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

const cbaListing = `<html><body>
<div class="brochures">
  <h3 class="brochures_title"><a href="/brochure/cba-10-07">Брошура 10.07-16.07.2025</a></h3>
  <h3 class="brochures_title"><a href="/brochure/cba-03-07">Брошура 03.07-09.07.2025</a></h3>
</div></body></html>`

func TestCBAResolve(t *testing.T) {
	t.Parallel()

	page := `<img src="/assets/brochures/thumb/r_0a1b_01.jpg">
<img src="/assets/brochures/large/r_0a1b_01.jpg">
<img src="/assets/brochures/large/r_ff00_02.jpg">`
	f := newFakeFetcher().
		page(CBABrochureURL, cbaListing).
		page("https://cbabg.com/brochure/cba-10-07", page)

	refs, err := NewCBA(newTestClient(f), "cba-bg", "", "").Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	ref := refs[0]
	require.NoError(t, ref.Validate())

	assert.Equal(t, "cba-bg-2025-07-10", ref.BrochureID)
	assert.Equal(t, day(2025, 7, 10), ref.ValidFrom)
	assert.Equal(t, endOf(2025, 7, 16), ref.ValidTo)
	assert.Equal(t, crawler.LocatorImageList, ref.Locator.Kind)
	assert.Equal(t, []string{
		"https://cbabg.com/assets/brochures/large/r_0a1b_01.jpg",
		"https://cbabg.com/assets/brochures/large/r_ff00_02.jpg",
	}, ref.Locator.URLs)
}

func TestCBAMarkupFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		listing string
		page    string
	}{
		{name: "no title", listing: `<h2>Брошури</h2>`},
		{name: "no link", listing: `<h3 class="brochures_title">10.07-16.07.2025</h3>`},
		{name: "no dates", listing: `<h3 class="brochures_title"><a href="/brochure/cba-10-07">Нова брошура</a></h3>`},
		{name: "no images", listing: cbaListing, page: `<p>empty</p>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeFetcher().page(CBABrochureURL, tc.listing)
			if tc.page != "" {
				f.page("https://cbabg.com/brochure/cba-10-07", tc.page)
			}
			_, err := NewCBA(newTestClient(f), "cba-bg", "", "").Resolve(context.Background(), "")
			require.ErrorIs(t, err, crawler.ErrResolution)
		})
	}
}
