package resolver

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/netnet/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func disclosure(date, reportType string) models.DisclosureRecord {
	return models.DisclosureRecord{Ticker: "7203.T", DisclosedDate: day(date), ReportType: reportType}
}

func TestResolvePicksLatestOnOrBefore(t *testing.T) {
	records := []models.DisclosureRecord{
		disclosure("2024-05-10", "FY"),
		disclosure("2023-05-10", "FY"),
		disclosure("2024-08-09", "1Q"),
		disclosure("2023-11-10", "2Q"),
	}

	tests := []struct {
		name     string
		asOf     string
		wantDate string
	}{
		{"between filings", "2024-06-01", "2024-05-10"},
		{"on a disclosure day", "2024-08-09", "2024-08-09"},
		{"day before a disclosure", "2024-08-08", "2024-05-10"},
		{"after everything", "2024-12-31", "2024-08-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(records, day(tt.asOf), 0)
			require.NoError(t, err)
			assert.Equal(t, day(tt.wantDate), res.Record.DisclosedDate)
		})
	}
}

func TestResolveDoesNotReorderInput(t *testing.T) {
	records := []models.DisclosureRecord{disclosure("2024-05-10", "FY"), disclosure("2023-05-10", "FY")}
	_, err := Resolve(records, day("2024-06-01"), 0)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-10"), records[0].DisclosedDate)
}

func TestResolveSameDayTieBreak(t *testing.T) {
	records := []models.DisclosureRecord{
		disclosure("2024-05-10", "original"),
		disclosure("2024-05-10", "amended"),
	}
	res, err := Resolve(records, day("2024-05-10"), 0)
	require.NoError(t, err)
	assert.Equal(t, "amended", res.Record.ReportType)
}

func TestResolveEmpty(t *testing.T) {
	_, err := Resolve([]models.DisclosureRecord{}, day("2024-01-01"), 365)
	assert.ErrorIs(t, err, models.ErrDataAbsent)
}

func TestResolveInsufficientHistory(t *testing.T) {
	records := []models.DisclosureRecord{disclosure("2024-05-10", "FY")}
	_, err := Resolve(records, day("2024-05-09"), 365)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestResolveStaleness(t *testing.T) {
	records := []models.ShareCountRecord{{DisclosedDate: day("2023-01-01")}}

	// 2024-01-01 is 365 days after 2023-01-01
	res, err := Resolve(records, day("2024-01-01"), 365)
	require.NoError(t, err)
	assert.Equal(t, 365, res.AgeDays)

	_, err = Resolve(records, day("2024-01-02"), 365)
	assert.ErrorIs(t, err, models.ErrStale)

	_, err = Resolve(records, day("2030-01-01"), 0)
	assert.NoError(t, err, "non-positive bound disables staleness")
}

// No record disclosed after the analysis date is ever selected.
func TestResolveNoLookahead(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := day("2015-01-01")
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(12)
		records := make([]models.DisclosureRecord, n)
		for j := range records {
			records[j] = models.DisclosureRecord{DisclosedDate: base.AddDate(0, 0, rng.Intn(3000))}
		}
		asOf := base.AddDate(0, 0, rng.Intn(3200))

		res, err := Resolve(records, asOf, 0)
		if err != nil {
			require.ErrorIs(t, err, models.ErrInsufficientHistory)
			for _, r := range records {
				assert.True(t, r.DisclosedDate.After(asOf))
			}
			continue
		}
		assert.False(t, res.Record.DisclosedDate.After(asOf))
		for _, r := range records {
			if !r.DisclosedDate.After(asOf) {
				assert.False(t, r.DisclosedDate.After(res.Record.DisclosedDate), "a later eligible record exists")
			}
		}
	}
}

func TestDividendsAsOf(t *testing.T) {
	divs := []models.Dividend{
		{RecordDate: day("2023-03-31"), AnnouncementDate: day("2023-02-01"), Amount: models.Float(10)},
		{RecordDate: day("2023-09-30"), AnnouncementDate: day("2023-08-01"), Amount: models.Float(12)},
		{RecordDate: day("2024-03-31"), AnnouncementDate: day("2024-02-01"), Amount: models.Float(15)},
		{RecordDate: day("2024-03-31"), AnnouncementDate: day("2024-05-01"), Amount: models.Float(99)},
		{Amount: models.Float(1)},
	}
	got := DividendsAsOf(divs, day("2024-04-15"), 365)
	require.Len(t, got, 2)
	assert.Equal(t, 12.0, *got[0].Amount)
	assert.Equal(t, 15.0, *got[1].Amount)
}
