package models

import (
	"errors"
	"time"
)

// SkipCode categorizes why a ticker produced no screening row.
// S1xxx = data availability, S2xxx = metrics, S3xxx = pricing.
type SkipCode string

const (
	SkipDataAbsent           SkipCode = "S1001" // ticker was never checkpointed
	SkipInsufficientHistory  SkipCode = "S1002" // nothing disclosed on or before the analysis date
	SkipStale                SkipCode = "S1003" // latest disclosure older than the lookbehind bound
	SkipMetricUndefined      SkipCode = "S2001"
	SkipSharesUndefined      SkipCode = "S2002"
	SkipLiabilitiesUndefined SkipCode = "S2003"
	SkipNoPrice              SkipCode = "S3001"
	SkipOther                SkipCode = "S9999"
)

// Skip is a non-fatal per-ticker outcome recorded during screening.
type Skip struct {
	Ticker       Ticker    `json:"ticker"`
	AnalysisDate time.Time `json:"analysis_date"`
	Code         SkipCode  `json:"code"`
	Message      string    `json:"message"`
}

// SkipCodeFor maps a screening error to its skip code.
func SkipCodeFor(err error) SkipCode {
	switch {
	case errors.Is(err, ErrDataAbsent):
		return SkipDataAbsent
	case errors.Is(err, ErrInsufficientHistory):
		return SkipInsufficientHistory
	case errors.Is(err, ErrStale):
		return SkipStale
	case errors.Is(err, ErrSharesUndefined):
		return SkipSharesUndefined
	case errors.Is(err, ErrLiabilitiesUndefined):
		return SkipLiabilitiesUndefined
	case errors.Is(err, ErrMetricUndefined):
		return SkipMetricUndefined
	case errors.Is(err, ErrNoPrice):
		return SkipNoPrice
	default:
		return SkipOther
	}
}
