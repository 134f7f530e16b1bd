package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidityShortForm(t *testing.T) {
	t.Parallel()

	from, to, ok := ParseValidity("10.07-16.07.2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 7, 16, 23, 59, 59, int(999*time.Millisecond), time.UTC), to)
	assert.Equal(t, "2025-07-16T23:59:59.999Z", to.Format("2006-01-02T15:04:05.000Z07:00"))
}

func TestParseValidityGrammars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "embedded in title",
			input:    "Брошура Billa 03.07-09.07.2025 седмична",
			wantFrom: time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC),
			wantTo:   EndOfDay(time.Date(2025, 7, 9, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "dot before dash",
			input:    "от 10.07. - 16.07.2025",
			wantFrom: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
			wantTo:   EndOfDay(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "dashed slug",
			input:    "10-07-16-07-2025",
			wantFrom: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
			wantTo:   EndOfDay(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "full dates",
			input:    "Valid 28.07.2025 - 03.08.2025",
			wantFrom: time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC),
			wantTo:   EndOfDay(time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "year boundary",
			input:    "29.12-04.01.2026",
			wantFrom: time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC),
			wantTo:   EndOfDay(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			from, to, ok := ParseValidity(tc.input)
			require.True(t, ok)
			assert.Equal(t, tc.wantFrom, from)
			assert.Equal(t, tc.wantTo, to)
		})
	}
}

func TestParseValidityRejects(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "weekly offers", "31.02-05.03.2025", "10.13-16.13.2025"} {
		_, _, ok := ParseValidity(input)
		assert.False(t, ok, input)
	}
}

func TestParseValidityIgnoresDigitsInsideLongerNumbers(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"110.07.2025 - 16.07.2025",
		"10.07.2025 - 16.07.20251",
		"110.07-16.07.2025",
		"10.07-16.07.20259",
		"price 310-07-16-07-2025",
		"10-07-16-07-20251",
	} {
		_, _, ok := ParseValidity(input)
		assert.False(t, ok, input)
	}

	from, _, ok := ParseValidity("catalog 9910 / 10.07-16.07.2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC), from)
}

func TestWeekWindow(t *testing.T) {
	t.Parallel()

	// Wednesday.
	from, to := WeekWindow(time.Date(2025, 7, 16, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, EndOfDay(time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC)), to)

	// Sunday stays in the same week.
	from, _ = WeekWindow(time.Date(2025, 7, 20, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), from)
}
