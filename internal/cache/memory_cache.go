package cache

import (
	"sync"
	"time"

	"github.com/epeers/netnet/internal/models"
)

// MemoryCache is an in-memory cache of single-day quotes fetched from the API.
// A nil quote records a day known to have no trade; those entries expire after
// missTTL so a late-published quote can still be picked up.
type MemoryCache struct {
	quotes  map[quoteKey]quoteEntry
	quoteMu sync.RWMutex
	missTTL time.Duration

	hits   int64
	misses int64
}

type quoteKey struct {
	ticker models.Ticker
	date   string
}

type quoteEntry struct {
	quote     *models.DailyQuote
	fetchedAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(missTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		quotes:  make(map[quoteKey]quoteEntry),
		missTTL: missTTL,
	}
}

func key(t models.Ticker, date time.Time) quoteKey {
	return quoteKey{ticker: t, date: date.Format("2006-01-02")}
}

// GetQuote returns the cached quote for ticker on date. found is false when
// the day was never looked up or its negative entry expired.
func (c *MemoryCache) GetQuote(t models.Ticker, date time.Time) (quote *models.DailyQuote, found bool) {
	c.quoteMu.Lock()
	defer c.quoteMu.Unlock()

	entry, exists := c.quotes[key(t, date)]
	if !exists || (entry.quote == nil && c.missTTL > 0 && time.Since(entry.fetchedAt) > c.missTTL) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.quote, true
}

// SetQuote caches quote, which may be nil for a day without trading.
func (c *MemoryCache) SetQuote(t models.Ticker, date time.Time, quote *models.DailyQuote) {
	c.quoteMu.Lock()
	defer c.quoteMu.Unlock()

	c.quotes[key(t, date)] = quoteEntry{
		quote:     quote,
		fetchedAt: time.Now(),
	}
}

// Stats returns hit and miss counts.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.quoteMu.RLock()
	defer c.quoteMu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached days.
func (c *MemoryCache) Len() int {
	c.quoteMu.RLock()
	defer c.quoteMu.RUnlock()
	return len(c.quotes)
}
