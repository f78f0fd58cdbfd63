package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/netnet/internal/cache"
	"github.com/epeers/netnet/internal/models"
)

type fakeQuotes struct {
	mu     sync.Mutex
	closes map[time.Time]float64
	calls  int
	err    error
}

func (f *fakeQuotes) DailyQuote(_ context.Context, t models.Ticker, date time.Time) (*models.DailyQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.closes[date]
	if !ok {
		return nil, nil
	}
	return &models.DailyQuote{Ticker: t, Date: date, Close: models.Float(c)}, nil
}

func TestGetPriceAtDateFromAPI(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeQuotes{closes: map[time.Time]float64{
		day.AddDate(0, 0, -1): 0,
		day.AddDate(0, 0, -3): 512,
	}}
	svc := NewPricingService(src, cache.NewMemoryCache(time.Hour), 5)

	price, priceDate, err := svc.GetPriceAtDate(context.Background(), "1301.T", day, nil)
	require.NoError(t, err)
	assert.Equal(t, 512.0, price)
	assert.True(t, priceDate.Equal(day.AddDate(0, 0, -3)))
	assert.Equal(t, 4, src.calls)

	_, _, err = svc.GetPriceAtDate(context.Background(), "1301.T", day, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, src.calls, "second lookup is served from cache")
}

func TestGetPriceAtDateExhausted(t *testing.T) {
	src := &fakeQuotes{closes: map[time.Time]float64{}}
	svc := NewPricingService(src, nil, 2)

	_, _, err := svc.GetPriceAtDate(context.Background(), "1301.T", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoPrice)
	assert.Equal(t, 3, src.calls)
}

func TestGetPriceAtDatePrefersCollectedQuotes(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeQuotes{err: errors.New("should not be called")}
	svc := NewPricingService(src, nil, 5)

	payload := &models.TickerPayload{
		Ticker:    "1301.T",
		HasQuotes: true,
		Quotes: []models.DailyQuote{
			{Date: day.AddDate(0, 0, -2), Close: models.Float(99)},
			{Date: day.AddDate(0, 0, 1), Close: models.Float(120)},
		},
	}
	price, priceDate, err := svc.GetPriceAtDate(context.Background(), "1301.T", day, payload)
	require.NoError(t, err)
	assert.Equal(t, 99.0, price)
	assert.True(t, priceDate.Equal(day.AddDate(0, 0, -2)))
	assert.Equal(t, 0, src.calls)
}

func TestGetPriceAtDatePropagatesAPIError(t *testing.T) {
	src := &fakeQuotes{err: errors.New("connection reset")}
	svc := NewPricingService(src, nil, 5)

	_, _, err := svc.GetPriceAtDate(context.Background(), "1301.T", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNoPrice)
}
