package crawler

import (
	"regexp"
	"strconv"
	"time"
)

// Each pattern is fenced by non-digits so a date is never read out of a
// longer number.
var (
	fullDateRange  = regexp.MustCompile(`(?:^|\D)(\d{2})\.(\d{2})\.(\d{4})\s*-\s*(\d{2})\.(\d{2})\.(\d{4})(?:\D|$)`)
	shortDateRange = regexp.MustCompile(`(?:^|\D)(\d{2})\.(\d{2})\.?\s*-\s*(\d{2})\.(\d{2})\.(\d{4})(?:\D|$)`)
	dashDateRange  = regexp.MustCompile(`(?:^|\D)(\d{2})-(\d{2})-(\d{2})-(\d{2})-(\d{4})(?:\D|$)`)
)

// ParseValidity extracts the first validity window found in text. Accepted
// forms are DD.MM.YYYY - DD.MM.YYYY, DD.MM-DD.MM.YYYY (optionally with a dot
// before the dash) and DD-MM-DD-MM-YYYY. Both dates are UTC; to is moved to
// the last millisecond of its day. A start month after the end month belongs
// to the previous year.
func ParseValidity(text string) (time.Time, time.Time, bool) {
	if m := fullDateRange.FindStringSubmatch(text); m != nil {
		return buildWindow(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]))
	}
	if m := shortDateRange.FindStringSubmatch(text); m != nil {
		return buildShortWindow(m[1:])
	}
	if m := dashDateRange.FindStringSubmatch(text); m != nil {
		return buildShortWindow(m[1:])
	}
	return time.Time{}, time.Time{}, false
}

func buildShortWindow(parts []string) (time.Time, time.Time, bool) {
	startDay, startMonth := atoi(parts[0]), atoi(parts[1])
	endDay, endMonth, year := atoi(parts[2]), atoi(parts[3]), atoi(parts[4])
	startYear := year
	if startMonth > endMonth {
		startYear = year - 1
	}
	return buildWindow(startDay, startMonth, startYear, endDay, endMonth, year)
}

func buildWindow(startDay, startMonth, startYear, endDay, endMonth, endYear int) (time.Time, time.Time, bool) {
	from, ok := civilDate(startYear, startMonth, startDay)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := civilDate(endYear, endMonth, endDay)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to = EndOfDay(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// civilDate rejects dates that time.Date would normalize, such as 31.02.
func civilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// StartOfDay returns midnight UTC of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 UTC of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Millisecond)
}

// WeekWindow returns Monday 00:00 through Sunday 23:59:59.999 (UTC) of the ISO week containing t.
func WeekWindow(t time.Time) (time.Time, time.Time) {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return monday, EndOfDay(monday.AddDate(0, 0, 6))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
