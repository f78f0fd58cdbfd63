package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/epeers/netnet/internal/checkpoint"
	"github.com/epeers/netnet/internal/jquants"
	"github.com/epeers/netnet/internal/models"
)

// Fetcher is the part of the API the collector needs.
type Fetcher interface {
	Statements(ctx context.Context, t models.Ticker) ([]models.ShareCountRecord, error)
	FSDetails(ctx context.Context, t models.Ticker) ([]models.DisclosureRecord, error)
	Dividends(ctx context.Context, t models.Ticker) ([]models.Dividend, error)
	DailyQuotes(ctx context.Context, t models.Ticker) ([]models.DailyQuote, error)
}

// FetchOptions tune the collector.
type FetchOptions struct {
	ConcurrencyLimit int
	BatchSize        int
	CollectPrices    bool
}

// FetchSummary reports the outcome of one collection run.
type FetchSummary struct {
	Requested        int
	AlreadyCollected int
	Succeeded        int
	Failed           map[models.Ticker]string
}

// FailedTickers returns the failed tickers in no particular order.
func (s *FetchSummary) FailedTickers() []string {
	out := make([]string, 0, len(s.Failed))
	for t := range s.Failed {
		out = append(out, string(t))
	}
	return out
}

// FetchService collects raw data for every ticker not yet checkpointed.
// Tickers run concurrently up to ConcurrencyLimit; a ticker is checkpointed
// only once all of its sub-fetches succeed.
type FetchService struct {
	client Fetcher
	store  *checkpoint.Store
	opts   FetchOptions
	now    func() time.Time
}

// NewFetchService creates a new FetchService
func NewFetchService(client Fetcher, store *checkpoint.Store, opts FetchOptions) *FetchService {
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &FetchService{
		client: client,
		store:  store,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type tickerResult struct {
	ticker models.Ticker
	err    error
}

// Run collects every ticker of universe missing from ds. Per-ticker failures
// are logged and reported in the summary; an authentication failure stops
// the run and is returned.
func (s *FetchService) Run(ctx context.Context, universe []models.Ticker, ds *checkpoint.Dataset) (*FetchSummary, error) {
	defer TrackTime("FetchService.Run", time.Now())

	universe = models.DedupeTickers(universe)
	todo := ds.Missing(universe)
	summary := &FetchSummary{
		Requested:        len(universe),
		AlreadyCollected: len(universe) - len(todo),
		Failed:           make(map[models.Ticker]string),
	}
	if len(todo) == 0 {
		log.Infof("All %d tickers already collected", len(universe))
		return summary, nil
	}
	log.Infof("Collecting %d tickers (%d already collected), concurrency %d, batch size %d",
		len(todo), summary.AlreadyCollected, s.opts.ConcurrencyLimit, s.opts.BatchSize)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	sem := semaphore.NewWeighted(int64(s.opts.ConcurrencyLimit))

	for start := 0; start < len(todo); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(todo))
		batchStart := time.Now()

		results := s.runBatch(ctx, cancel, sem, todo[start:end], ds)

		batchOK := 0
		for _, r := range results {
			if r.err == nil {
				batchOK++
				continue
			}
			summary.Failed[r.ticker] = r.err.Error()
		}
		summary.Succeeded += batchOK

		if cause := context.Cause(ctx); cause != nil {
			if jquants.IsFatal(cause) {
				return summary, fmt.Errorf("collection aborted: %w", cause)
			}
			return summary, cause
		}

		if batchOK > 0 {
			if err := s.store.SaveSnapshot(ds); err != nil {
				log.Warnf("Failed to save checkpoint snapshot: %v", err)
			}
		}
		log.Infof("Batch %d-%d of %d done in %s: %d collected, %d failed",
			start+1, end, len(todo), time.Since(batchStart).Round(time.Millisecond), batchOK, len(results)-batchOK)
	}

	log.Infof("Collection finished: %d collected, %d failed, %d total in checkpoint",
		summary.Succeeded, len(summary.Failed), ds.Len())
	return summary, nil
}

func (s *FetchService) runBatch(ctx context.Context, cancel context.CancelCauseFunc, sem *semaphore.Weighted, batch []models.Ticker, ds *checkpoint.Dataset) []tickerResult {
	results := make([]tickerResult, len(batch))
	var wg sync.WaitGroup
	for i, t := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.collectTicker(ctx, sem, t, ds)
			if jquants.IsFatal(err) {
				cancel(err)
			}
			results[i] = tickerResult{ticker: t, err: err}
		}()
	}
	wg.Wait()
	return results
}

// collectTicker fetches and checkpoints one ticker while holding a semaphore slot.
func (s *FetchService) collectTicker(ctx context.Context, sem *semaphore.Weighted, t models.Ticker, ds *checkpoint.Dataset) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	logger := log.WithField("ticker", t)
	payload, err := s.fetchTicker(ctx, t)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warnf("Collection failed: %v", err)
		}
		return err
	}
	if err := s.store.Append(ds, t, *payload); err != nil {
		logger.Errorf("Checkpoint write failed: %v", err)
		return err
	}
	logger.Debugf("Collected %d statements, %d fs_details, %d dividends, %d quotes",
		len(payload.Statements), len(payload.FSDetails), len(payload.Dividends), len(payload.Quotes))
	return nil
}

// fetchTicker runs the sub-fetches for t in parallel. Any failure cancels
// the others and discards the partial payload.
func (s *FetchService) fetchTicker(ctx context.Context, t models.Ticker) (*models.TickerPayload, error) {
	p := &models.TickerPayload{Ticker: t, FetchedAt: s.now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.client.Statements(gctx, t)
		p.Statements = recs
		return err
	})
	g.Go(func() error {
		recs, err := s.client.FSDetails(gctx, t)
		p.FSDetails = recs
		return err
	})
	g.Go(func() error {
		recs, err := s.client.Dividends(gctx, t)
		p.Dividends = recs
		return err
	})
	if s.opts.CollectPrices {
		p.HasQuotes = true
		g.Go(func() error {
			recs, err := s.client.DailyQuotes(gctx, t)
			p.Quotes = recs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}
