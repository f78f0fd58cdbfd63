package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"same day", "2024-03-01", "2024-03-01", 0},
		{"leap day", "2024-02-28", "2024-03-01", 2},
		{"a year", "2023-06-01", "2024-06-01", 366},
		{"negative", "2024-01-10", "2024-01-01", -9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(date(tt.a), date(tt.b)))
		})
	}
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
}

func TestWeeklyDates(t *testing.T) {
	// 2024-01-01 is a Monday
	dates := WeeklyDates(date("2024-01-01"), date("2024-01-31"), time.Wednesday)
	require.Len(t, dates, 5)
	assert.Equal(t, date("2024-01-03"), dates[0])
	assert.Equal(t, date("2024-01-31"), dates[4])
	for _, d := range dates {
		assert.Equal(t, time.Wednesday, d.Weekday())
	}

	assert.Empty(t, WeeklyDates(date("2024-02-01"), date("2024-01-01"), time.Wednesday))
	assert.Len(t, WeeklyDates(date("2024-01-03"), date("2024-01-03"), time.Wednesday), 1)
}

func TestParseDateRange(t *testing.T) {
	dates, err := ParseDateRange("2024-01-01:2024-01-14", time.Wednesday)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date("2024-01-03"), date("2024-01-10")}, dates)

	_, err = ParseDateRange("2024-01-01", time.Wednesday)
	assert.Error(t, err)
	_, err = ParseDateRange("2024-02-01:2024-01-01", time.Wednesday)
	assert.Error(t, err)
}

func TestParseDateList(t *testing.T) {
	dates, err := ParseDateList("2024-01-03, 2024-01-10,,")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date("2024-01-03"), date("2024-01-10")}, dates)

	_, err = ParseDateList("2024-13-01")
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "", FormatDate(time.Time{}))
	assert.Equal(t, "2024-01-03", FormatDate(date("2024-01-03")))
	assert.Equal(t, "2024_01_03", FileDate(date("2024-01-03")))
}
