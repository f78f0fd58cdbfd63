package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/epeers/netnet/internal/models"
)

type skipContextKey struct{}

// SkipCollector accumulates per-ticker skips during a screening pass.
type SkipCollector struct {
	mu    sync.Mutex
	skips []models.Skip
}

// NewSkipContext returns a context carrying a fresh SkipCollector,
// plus a reference to the collector so the caller can retrieve skips later.
func NewSkipContext(ctx context.Context) (context.Context, *SkipCollector) {
	sc := &SkipCollector{}
	return context.WithValue(ctx, skipContextKey{}, sc), sc
}

// AddSkip appends a skip to the collector in ctx.
// If ctx has no collector, the call is a no-op.
func AddSkip(ctx context.Context, s models.Skip) {
	sc, ok := ctx.Value(skipContextKey{}).(*SkipCollector)
	if !ok || sc == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.skips = append(sc.skips, s)
}

// RecordSkip converts a screening error into a skip and adds it to ctx.
func RecordSkip(ctx context.Context, req models.AnalysisRequest, err error) {
	msg := err.Error()
	var se *models.SkipError
	if errors.As(err, &se) {
		msg = se.Stage + ": " + se.Err.Error()
	}
	AddSkip(ctx, models.Skip{
		Ticker:       req.Ticker,
		AnalysisDate: req.AnalysisDate,
		Code:         models.SkipCodeFor(err),
		Message:      msg,
	})
}

// GetSkips returns all collected skips ordered by ticker.
func (sc *SkipCollector) GetSkips() []models.Skip {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]models.Skip, len(sc.skips))
	copy(out, sc.skips)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Counts tallies skips by code.
func (sc *SkipCollector) Counts() map[models.SkipCode]int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	counts := make(map[models.SkipCode]int)
	for _, s := range sc.skips {
		counts[s.Code]++
	}
	return counts
}
