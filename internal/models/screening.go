package models

import "time"

// AnalysisRequest asks for one ticker to be screened as of one date.
type AnalysisRequest struct {
	Ticker       Ticker
	AnalysisDate time.Time
}

// FundamentalMetrics are the balance-sheet figures and ratios derived from
// one resolved disclosure and share-count pair. Optional values are nil when
// undefined; NCAVPS is always set on a successfully computed value.
type FundamentalMetrics struct {
	CurrentAssets         float64
	TotalLiabilities      float64
	CurrentLiabilities    *float64
	NonCurrentLiabilities *float64
	NCAVTotal             float64
	SharesOutstanding     float64
	NCAVPS                float64

	OperatingProfit *float64
	NetIncome       *float64
	Cash            *float64
	Property        *float64
	GrossDebt       *float64
	GrossDebtFields []string
	NetDebt         *float64
	NWCOper         *float64
	CapitalBase     *float64
	ReturnOnCapital *float64

	TTMDividend   float64
	DividendCount int

	// Filled in once a price is known.
	SharePrice         float64
	MarketCap          *float64
	EnterpriseValue    *float64
	EarningsYieldPE    *float64
	EarningsYieldEV    *float64
	DividendYield      *float64
	MarginOfSafetyRate float64
}

// ScreeningResult is one screened ticker for one analysis date.
type ScreeningResult struct {
	RunID        string    `json:"run_id"`
	Ticker       Ticker    `json:"ticker"`
	AnalysisDate time.Time `json:"analysis_date"`

	FSDate       time.Time `json:"fs_date"`
	STDate       time.Time `json:"st_date"`
	FSSTSkewDays int       `json:"fs_st_skew_days"`
	FSReportType string    `json:"fs_report_type"`
	STReportType string    `json:"st_report_type"`
	PriceDate    time.Time `json:"price_date"`

	SharePrice         float64  `json:"share_price"`
	SharesOutstanding  float64  `json:"shares_outstanding"`
	CurrentAssets      float64  `json:"current_assets"`
	TotalLiabilities   float64  `json:"total_liabilities"`
	NCAVTotal          float64  `json:"ncav_total"`
	NCAVPS             float64  `json:"ncavps"`
	MarginOfSafetyRate float64  `json:"margin_of_safety_rate"`
	IsNetNet           bool     `json:"is_netnet"`
	MarketCap          *float64 `json:"market_cap"`
	EnterpriseValue    *float64 `json:"enterprise_value"`
	NetIncome          *float64 `json:"net_income"`
	OperatingProfit    *float64 `json:"operating_profit"`
	CurrentLiabilities *float64 `json:"current_liabilities"`
	Cash               *float64 `json:"cash"`
	Property           *float64 `json:"property"`
	GrossDebt          *float64 `json:"gross_debt"`
	GrossDebtFields    []string `json:"gross_debt_fields"`
	NetDebt            *float64 `json:"net_debt"`
	NWCOper            *float64 `json:"nwc_oper"`
	CapitalBase        *float64 `json:"capital_base"`
	ReturnOnCapital    *float64 `json:"return_on_capital"`
	EarningsYieldPE    *float64 `json:"earnings_yield_pe"`
	EarningsYieldEV    *float64 `json:"earnings_yield_ev"`
	TTMDividend        float64  `json:"ttm_dividend"`
	DividendYield      *float64 `json:"dividend_yield"`
}
