package models

import (
	"errors"
	"fmt"
	"time"
)

// Per-ticker outcomes that skip a ticker without failing the run.
var (
	ErrDataAbsent          = errors.New("no data collected")
	ErrInsufficientHistory = errors.New("no disclosure on or before analysis date")
	ErrStale               = errors.New("latest disclosure is stale")
	ErrMetricUndefined     = errors.New("metric undefined")
	ErrNoPrice             = errors.New("no closing price in lookback window")

	ErrSharesUndefined      = fmt.Errorf("%w: shares outstanding missing or zero", ErrMetricUndefined)
	ErrLiabilitiesUndefined = fmt.Errorf("%w: total liabilities not reported or derivable", ErrMetricUndefined)
	ErrCurrentAssetsMissing = fmt.Errorf("%w: current assets not reported", ErrMetricUndefined)
)

// SkipError records why a ticker was dropped for an analysis date.
type SkipError struct {
	Ticker       Ticker
	AnalysisDate time.Time
	Stage        string
	Err          error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s on %s skipped at %s: %v", e.Ticker, e.AnalysisDate.Format("2006-01-02"), e.Stage, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// NewSkipError wraps err as a skip for ticker at stage.
func NewSkipError(ticker Ticker, date time.Time, stage string, err error) *SkipError {
	return &SkipError{Ticker: ticker, AnalysisDate: date, Stage: stage, Err: err}
}
