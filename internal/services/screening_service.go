package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/epeers/netnet/internal/checkpoint"
	"github.com/epeers/netnet/internal/fundamentals"
	"github.com/epeers/netnet/internal/jquants"
	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/output"
	"github.com/epeers/netnet/internal/resolver"
	"github.com/epeers/netnet/internal/util"
)

// ResultStore persists screening results outside the CSV files.
type ResultStore interface {
	InsertResults(ctx context.Context, results []models.ScreeningResult) (int, error)
}

// ScreeningOptions tune a screening pass.
type ScreeningOptions struct {
	ConcurrencyLimit   int
	Threshold          float64
	FSLookbehindDays   int
	STLookbehindDays   int
	DividendWindowDays int
	PerfLogInterval    time.Duration
}

// ScreenSummary reports one analysis date. Written counts net-nets appended
// this pass; FileRows is the total row count of the date's results file,
// including rows from earlier runs.
type ScreenSummary struct {
	RunID        string
	AnalysisDate time.Time
	Screened     int
	NetNets      []models.ScreeningResult
	Written      int
	FileRows     int
	Skips        []models.Skip
	SkipCounts   map[models.SkipCode]int
}

// ScreeningService evaluates checkpointed tickers for an analysis date and
// emits the ones trading below the net-net threshold.
type ScreeningService struct {
	dataset *checkpoint.Dataset
	pricing *PricingService
	calc    *fundamentals.Calculator
	sink    *output.Sink
	perf    *output.PerfLog
	results ResultStore
	opts    ScreeningOptions
}

// NewScreeningService creates a new ScreeningService
func NewScreeningService(dataset *checkpoint.Dataset, pricing *PricingService, sink *output.Sink, opts ScreeningOptions) *ScreeningService {
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = 1
	}
	if opts.DividendWindowDays <= 0 {
		opts.DividendWindowDays = 365
	}
	return &ScreeningService{
		dataset: dataset,
		pricing: pricing,
		calc:    fundamentals.NewCalculator(opts.DividendWindowDays),
		sink:    sink,
		opts:    opts,
	}
}

// WithResultStore also writes net-nets to rs.
func (s *ScreeningService) WithResultStore(rs ResultStore) *ScreeningService {
	s.results = rs
	return s
}

// WithPerfLog records throughput samples to p.
func (s *ScreeningService) WithPerfLog(p *output.PerfLog) *ScreeningService {
	s.perf = p
	return s
}

// Decide applies the net-net rule: price strictly below ncavps*threshold.
// A non-positive ncavps is never a net-net. mosRate is price/ncavps, or 0
// when ncavps is 0.
func Decide(ncavps, price, threshold float64) (mosRate float64, isNetNet bool) {
	if ncavps != 0 {
		mosRate = price / ncavps
	}
	return mosRate, ncavps > 0 && price < ncavps*threshold
}

// ScreenDate screens tickers as of date. Net-nets are appended to the output
// as they are found; per-ticker problems become skips. Only a fatal API
// error or cancellation is returned.
func (s *ScreeningService) ScreenDate(ctx context.Context, runID string, date time.Time, tickers []models.Ticker) (*ScreenSummary, error) {
	defer TrackTime("ScreeningService.ScreenDate "+util.FormatDate(date), time.Now())
	if runID == "" {
		runID = uuid.NewString()
	}
	date = util.DateOnly(date)
	tickers = models.DedupeTickers(tickers)
	log.Infof("Screening %d tickers as of %s (run %s)", len(tickers), util.FormatDate(date), runID)

	ctx, skips := NewSkipContext(ctx)
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var processed atomic.Int64
	started := time.Now()
	stopPerf := s.startPerfLogger(ctx, date, &processed, started)

	var (
		mu      sync.Mutex
		netnets []models.ScreeningResult
		written atomic.Int64
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(s.opts.ConcurrencyLimit))
	for _, t := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer processed.Add(1)

			req := models.AnalysisRequest{Ticker: t, AnalysisDate: date}
			res, err := s.ScreenTicker(ctx, runID, req)
			if err != nil {
				if jquants.IsFatal(err) || errors.Is(err, context.Canceled) {
					cancel(err)
					return
				}
				log.WithFields(log.Fields{"ticker": t, "analysis_date": util.FormatDate(date)}).Debugf("Skipped: %v", err)
				RecordSkip(ctx, req, err)
				return
			}
			if !res.IsNetNet {
				return
			}
			added, err := s.sink.WriteResult(*res)
			if err != nil {
				log.WithField("ticker", t).Errorf("Failed to write result: %v", err)
				return
			}
			if added {
				written.Add(1)
			}
			log.WithFields(log.Fields{"ticker": t, "mos_rate": res.MarginOfSafetyRate}).Info("Net-net found")
			mu.Lock()
			netnets = append(netnets, *res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	stopPerf()
	s.recordPerf(date, processed.Load(), time.Since(started))

	if cause := context.Cause(ctx); cause != nil {
		return nil, fmt.Errorf("screening %s aborted: %w", util.FormatDate(date), cause)
	}

	summary := &ScreenSummary{
		RunID:        runID,
		AnalysisDate: date,
		Screened:     int(processed.Load()),
		NetNets:      netnets,
		Written:      int(written.Load()),
		Skips:        skips.GetSkips(),
		SkipCounts:   skips.Counts(),
	}
	if err := s.sink.WriteSkips(date, summary.Skips); err != nil {
		log.Errorf("Failed to write skip log: %v", err)
	}
	if s.results != nil && len(netnets) > 0 {
		n, err := s.results.InsertResults(ctx, netnets)
		if err != nil {
			log.Errorf("Failed to store results for %s: %v", util.FormatDate(date), err)
		} else {
			log.Debugf("Stored %d new results for %s", n, util.FormatDate(date))
		}
	}
	rows, err := s.sink.RowCount(date)
	if err != nil {
		log.Errorf("Failed to count rows in %s: %v", output.ResultsPath(s.sink.Dir(), date), err)
	}
	summary.FileRows = rows

	hits, misses, size := s.pricing.CacheStats()
	log.WithFields(log.Fields{
		"screened":   summary.Screened,
		"net_nets":   len(netnets),
		"written":    summary.Written,
		"file_rows":  rows,
		"skipped":    len(summary.Skips),
		"cache_hits": hits,
		"cache_miss": misses,
		"cache_days": size,
	}).Infof("Screened %s", util.FormatDate(date))
	return summary, nil
}

// ScreenTicker evaluates one ticker for one date. The result is returned
// whether or not the ticker qualifies; skips come back as *models.SkipError.
func (s *ScreeningService) ScreenTicker(ctx context.Context, runID string, req models.AnalysisRequest) (*models.ScreeningResult, error) {
	t, date := req.Ticker, util.DateOnly(req.AnalysisDate)

	payload, ok := s.dataset.Get(t)
	if !ok {
		return nil, models.NewSkipError(t, date, "load", models.ErrDataAbsent)
	}

	fs, err := resolver.Resolve(payload.FSDetails, date, s.opts.FSLookbehindDays)
	if err != nil {
		return nil, models.NewSkipError(t, date, "resolve fs_details", err)
	}
	st, err := resolver.Resolve(payload.Statements, date, s.opts.STLookbehindDays)
	if err != nil {
		return nil, models.NewSkipError(t, date, "resolve statements", err)
	}
	divs := resolver.DividendsAsOf(payload.Dividends, date, s.calc.DividendWindowDays())

	m, err := s.calc.Compute(fs.Record, st.Record, divs)
	if err != nil {
		return nil, models.NewSkipError(t, date, "compute", err)
	}

	price, priceDate, err := s.pricing.GetPriceAtDate(ctx, t, fs.Record.DisclosedDate, &payload)
	if err != nil {
		if jquants.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, models.ErrNoPrice) {
			if lerr := s.sink.LogNoPrice(t, date); lerr != nil {
				log.Errorf("Failed to log missing price for %s: %v", t, lerr)
			}
		}
		return nil, models.NewSkipError(t, date, "price", err)
	}

	fundamentals.ApplyPrice(m, price)
	mos, isNetNet := Decide(m.NCAVPS, price, s.opts.Threshold)
	m.MarginOfSafetyRate = mos

	return &models.ScreeningResult{
		RunID:              runID,
		Ticker:             t,
		AnalysisDate:       date,
		FSDate:             fs.Record.DisclosedDate,
		STDate:             st.Record.DisclosedDate,
		FSSTSkewDays:       util.DaysBetween(fs.Record.DisclosedDate, st.Record.DisclosedDate),
		FSReportType:       fs.Record.ReportType,
		STReportType:       st.Record.ReportType,
		PriceDate:          priceDate,
		SharePrice:         price,
		SharesOutstanding:  m.SharesOutstanding,
		CurrentAssets:      m.CurrentAssets,
		TotalLiabilities:   m.TotalLiabilities,
		NCAVTotal:          m.NCAVTotal,
		NCAVPS:             m.NCAVPS,
		MarginOfSafetyRate: mos,
		IsNetNet:           isNetNet,
		MarketCap:          m.MarketCap,
		EnterpriseValue:    m.EnterpriseValue,
		NetIncome:          m.NetIncome,
		OperatingProfit:    m.OperatingProfit,
		CurrentLiabilities: m.CurrentLiabilities,
		Cash:               m.Cash,
		Property:           m.Property,
		GrossDebt:          m.GrossDebt,
		GrossDebtFields:    m.GrossDebtFields,
		NetDebt:            m.NetDebt,
		NWCOper:            m.NWCOper,
		CapitalBase:        m.CapitalBase,
		ReturnOnCapital:    m.ReturnOnCapital,
		EarningsYieldPE:    m.EarningsYieldPE,
		EarningsYieldEV:    m.EarningsYieldEV,
		TTMDividend:        m.TTMDividend,
		DividendYield:      m.DividendYield,
	}, nil
}

func (s *ScreeningService) startPerfLogger(ctx context.Context, date time.Time, processed *atomic.Int64, started time.Time) (stop func()) {
	if s.perf == nil || s.opts.PerfLogInterval <= 0 {
		return func() {}
	}
	return RunPerfLogger(ctx, s.opts.PerfLogInterval, func() {
		s.recordPerf(date, processed.Load(), time.Since(started))
	})
}

func (s *ScreeningService) recordPerf(date time.Time, processed int64, elapsed time.Duration) {
	if s.perf == nil {
		return
	}
	row := output.PerfRow{
		AnalysisDate:     date,
		SemaphoreLimit:   s.opts.ConcurrencyLimit,
		TickersProcessed: processed,
		Duration:         elapsed,
	}
	if err := s.perf.Record(row); err != nil {
		log.Warnf("Failed to write performance log: %v", err)
	}
}
