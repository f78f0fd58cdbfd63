package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/netnet/internal/models"
)

type fakeListedInfo struct {
	calls  atomic.Int32
	issues []models.ListedIssue
	err    error
}

func (f *fakeListedInfo) ListedInfo(_ context.Context, date time.Time) ([]models.ListedIssue, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ListedIssue, len(f.issues))
	for i, is := range f.issues {
		is.Date = date
		out[i] = is
	}
	return out, nil
}

func TestParseTickerList(t *testing.T) {
	input := "7203\n\n  72030 ,9984.T\n# comment\n.BAD\n1301.T\nAAPL.US\n7203.T\n"
	tickers, err := ParseTickerList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{"7203.T", "9984.T", "1301.T", "AAPL.US"}, tickers)
}

func TestUniverseForDateCachesFile(t *testing.T) {
	src := &fakeListedInfo{issues: []models.ListedIssue{
		{Ticker: "7203.T"}, {Ticker: "1301.T"}, {Ticker: "7203.T"},
	}}
	svc := NewUniverseService(src, t.TempDir())
	date := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)

	tickers, err := svc.ForDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{"7203.T", "1301.T"}, tickers)
	assert.True(t, strings.HasSuffix(svc.TickerFilePath(date), "jquant_tickers_2024_06_05.txt"))

	data, err := os.ReadFile(svc.TickerFilePath(date))
	require.NoError(t, err)
	assert.Equal(t, "7203.T\n1301.T\n", string(data))

	again, err := svc.ForDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, tickers, again)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestUniverseForDateSourceError(t *testing.T) {
	src := &fakeListedInfo{err: errors.New("boom")}
	svc := NewUniverseService(src, t.TempDir())
	date := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)

	_, err := svc.ForDate(context.Background(), date)
	require.Error(t, err)
	_, statErr := os.Stat(svc.TickerFilePath(date))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUniverseForDates(t *testing.T) {
	svc := NewUniverseService(nil, t.TempDir())
	d1 := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WriteTickerFile(svc.TickerFilePath(d1), []models.Ticker{"9984.T", "1301.T"}))
	require.NoError(t, WriteTickerFile(svc.TickerFilePath(d2), []models.Ticker{"7203.T", "1301.T"}))

	merged, err := svc.ForDates(context.Background(), []time.Time{d1, d2})
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{"1301.T", "7203.T", "9984.T"}, merged)

	_, err = svc.ForDate(context.Background(), time.Date(2024, 6, 19, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
