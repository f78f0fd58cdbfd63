package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/cache"
	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/util"
)

// QuoteSource fetches a single day's quote; nil means no record for the day.
type QuoteSource interface {
	DailyQuote(ctx context.Context, t models.Ticker, date time.Time) (*models.DailyQuote, error)
}

// PricingService finds the closing price on or before a date, using the
// collected price history when present and the API otherwise.
type PricingService struct {
	client       QuoteSource
	cache        *cache.MemoryCache
	lookbackDays int
}

// NewPricingService creates a new PricingService. client may be nil, in which
// case only collected history is consulted.
func NewPricingService(client QuoteSource, memCache *cache.MemoryCache, lookbackDays int) *PricingService {
	if memCache == nil {
		memCache = cache.NewMemoryCache(time.Hour)
	}
	return &PricingService{
		client:       client,
		cache:        memCache,
		lookbackDays: lookbackDays,
	}
}

// CacheStats reports quote cache hits, misses and the number of cached days.
func (s *PricingService) CacheStats() (hits, misses int64, size int) {
	hits, misses = s.cache.Stats()
	return hits, misses, s.cache.Len()
}

// GetPriceAtDate walks back one day at a time from date, up to lookbackDays,
// and returns the first positive close with its trading date. Days without a
// trade or with a zero close are skipped. It returns models.ErrNoPrice when
// the window is exhausted.
func (s *PricingService) GetPriceAtDate(ctx context.Context, t models.Ticker, date time.Time, payload *models.TickerPayload) (float64, time.Time, error) {
	start := util.DateOnly(date)

	var local map[time.Time]models.DailyQuote
	if payload != nil && payload.HasQuotes {
		local = make(map[time.Time]models.DailyQuote, len(payload.Quotes))
		for _, q := range payload.Quotes {
			local[util.DateOnly(q.Date)] = q
		}
	}

	for i := 0; i <= s.lookbackDays; i++ {
		day := start.AddDate(0, 0, -i)

		var q *models.DailyQuote
		if local != nil {
			if lq, ok := local[day]; ok {
				q = &lq
			}
		} else {
			var err error
			q, err = s.quoteForDay(ctx, t, day)
			if err != nil {
				return 0, time.Time{}, err
			}
		}

		if q != nil && q.HasClose() {
			if i > 0 {
				log.WithFields(log.Fields{"ticker": t, "requested": util.FormatDate(start)}).
					Debugf("Using close from %s, %d days back", util.FormatDate(day), i)
			}
			return *q.Close, day, nil
		}
	}

	return 0, time.Time{}, fmt.Errorf("%w: %s within %d days before %s", models.ErrNoPrice, t, s.lookbackDays, util.FormatDate(start))
}

// quoteForDay consults the cache before calling the API.
func (s *PricingService) quoteForDay(ctx context.Context, t models.Ticker, day time.Time) (*models.DailyQuote, error) {
	if q, found := s.cache.GetQuote(t, day); found {
		return q, nil
	}
	if s.client == nil {
		return nil, nil
	}
	q, err := s.client.DailyQuote(ctx, t, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s on %s: %w", t, util.FormatDate(day), err)
	}
	s.cache.SetQuote(t, day, q)
	return q, nil
}
