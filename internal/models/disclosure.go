package models

import "time"

// Line-item keys in the detailed financial statement payload.
const (
	ItemPeriodType    = "Type of current period, DEI"
	ItemFiscalYearEnd = "Current fiscal year end date, DEI"
)

// LineItems holds the raw key/value line items of a detailed statement.
// Values are kept as strings; numeric coercion happens in fundamentals.
type LineItems map[string]string

// DisclosureRecord is one detailed financial statement filing.
type DisclosureRecord struct {
	Ticker        Ticker
	DisclosedDate time.Time
	ReportType    string
	PeriodType    string
	FiscalYearEnd string
	Items         LineItems
}

// Disclosed returns the date the record became public.
func (r DisclosureRecord) Disclosed() time.Time {
	return r.DisclosedDate
}

// ShareCountRecord is one summary statement filing carrying the share count.
type ShareCountRecord struct {
	Ticker            Ticker
	DisclosedDate     time.Time
	ReportType        string
	PeriodType        string
	TotalAssets       *float64
	Equity            *float64
	SharesOutstanding *float64
	TreasuryShares    *float64
}

// Disclosed returns the date the record became public.
func (r ShareCountRecord) Disclosed() time.Time {
	return r.DisclosedDate
}
