package checkpoint

import (
	"sort"
	"sync"

	"github.com/epeers/netnet/internal/models"
)

// Dataset is the in-memory working set of collected tickers.
// Lookups never create entries; a missing ticker is reported as absent.
type Dataset struct {
	mu       sync.RWMutex
	payloads map[models.Ticker]models.TickerPayload
}

// NewDataset creates an empty Dataset.
func NewDataset() *Dataset {
	return &Dataset{payloads: make(map[models.Ticker]models.TickerPayload)}
}

// Get returns the payload for t and whether it exists.
func (d *Dataset) Get(t models.Ticker) (models.TickerPayload, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.payloads[t]
	return p, ok
}

// Has reports whether t has been collected.
func (d *Dataset) Has(t models.Ticker) bool {
	_, ok := d.Get(t)
	return ok
}

// Put stores the payload for t, replacing any previous one.
func (d *Dataset) Put(t models.Ticker, p models.TickerPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads[t] = p
}

// Len returns the number of collected tickers.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.payloads)
}

// Tickers returns all collected tickers in sorted order.
func (d *Dataset) Tickers() []models.Ticker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Ticker, 0, len(d.payloads))
	for t := range d.payloads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Missing returns the tickers of universe not yet collected, in universe order.
func (d *Dataset) Missing(universe []models.Ticker) []models.Ticker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.Ticker
	for _, t := range universe {
		if _, ok := d.payloads[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func (d *Dataset) entries() []entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]entry, 0, len(d.payloads))
	for t, p := range d.payloads {
		out = append(out, entry{Ticker: t, Payload: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
