package util

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DateLayout is the canonical date format used in file names, CSV and the API.
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as "YYYY-MM-DD"; the zero time renders as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FileDate renders t as "YYYY_MM_DD" for use in file names.
func FileDate(t time.Time) string {
	return t.Format("2006_01_02")
}

// DaysBetween returns the whole calendar days from a to b (b - a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// ParseDateList parses a comma separated list of dates, skipping blanks.
func ParseDateList(s string) ([]time.Time, error) {
	var dates []time.Time
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseDate(part)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// WeeklyDates returns every date in [from, to] falling on weekday.
func WeeklyDates(from, to time.Time, weekday time.Weekday) []time.Time {
	from, to = DateOnly(from), DateOnly(to)
	if to.Before(from) {
		log.Warnf("WeeklyDates: range end %s is before start %s", FormatDate(to), FormatDate(from))
		return nil
	}
	offset := (int(weekday) - int(from.Weekday()) + 7) % 7
	var dates []time.Time
	for d := from.AddDate(0, 0, offset); !d.After(to); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}

// ParseDateRange expands "from:to" into the weekly dates on weekday.
func ParseDateRange(s string, weekday time.Weekday) ([]time.Time, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid date range %q, expected FROM:TO", s)
	}
	from, err := ParseDate(parts[0])
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(parts[1])
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range %q: end before start", s)
	}
	return WeeklyDates(from, to, weekday), nil
}
