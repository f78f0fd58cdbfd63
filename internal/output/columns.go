package output

import (
	"strconv"
	"strings"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/util"
)

// ResultColumns is the header of the screening results file.
var ResultColumns = []string{
	"ticker", "analysis_date", "ncavps", "share_price", "mos_rate",
	"market_cap", "enterprise_value", "ey_shares_out", "ey_net_income", "operating_profit",
	"ey_gross_debt", "ey_pe", "ey_ev",
	"roc_current_assets", "roc_current_liabilities", "roc_cash_and_equivalents", "roc_property",
	"roc_nwc_oper", "roc_capital_base", "roc",
	"fs_gross_debt_fields", "fs_date", "st_date", "fs_st_skew_days", "st_report_type", "fs_report_type",
	"ttm_dividend", "dividend_yield", "run_id",
}

// GrossDebtFieldSep joins the contributing gross debt labels in one cell.
const GrossDebtFieldSep = ";"

// FormatFloat renders f without exponent and without trailing zeros.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatOptional renders an undefined value as an empty cell.
func FormatOptional(p *float64) string {
	if p == nil {
		return ""
	}
	return FormatFloat(*p)
}

// ResultRecord renders r in ResultColumns order.
func ResultRecord(r models.ScreeningResult) []string {
	return []string{
		string(r.Ticker),
		util.FormatDate(r.AnalysisDate),
		FormatFloat(r.NCAVPS),
		FormatFloat(r.SharePrice),
		FormatFloat(r.MarginOfSafetyRate),
		FormatOptional(r.MarketCap),
		FormatOptional(r.EnterpriseValue),
		FormatFloat(r.SharesOutstanding),
		FormatOptional(r.NetIncome),
		FormatOptional(r.OperatingProfit),
		FormatOptional(r.GrossDebt),
		FormatOptional(r.EarningsYieldPE),
		FormatOptional(r.EarningsYieldEV),
		FormatFloat(r.CurrentAssets),
		FormatOptional(r.CurrentLiabilities),
		FormatOptional(r.Cash),
		FormatOptional(r.Property),
		FormatOptional(r.NWCOper),
		FormatOptional(r.CapitalBase),
		FormatOptional(r.ReturnOnCapital),
		strings.Join(r.GrossDebtFields, GrossDebtFieldSep),
		util.FormatDate(r.FSDate),
		util.FormatDate(r.STDate),
		strconv.Itoa(r.FSSTSkewDays),
		r.STReportType,
		r.FSReportType,
		FormatFloat(r.TTMDividend),
		FormatOptional(r.DividendYield),
		r.RunID,
	}
}
