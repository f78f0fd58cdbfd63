// Package fundamentals derives net current asset value and related ratios
// from resolved disclosures.
package fundamentals

import (
	"fmt"
	"math"

	"github.com/epeers/netnet/internal/models"
)

// Calculator computes FundamentalMetrics. It holds no state besides options.
type Calculator struct {
	dividendWindowDays int
}

// NewCalculator creates a Calculator summing dividends over windowDays.
func NewCalculator(dividendWindowDays int) *Calculator {
	return &Calculator{dividendWindowDays: dividendWindowDays}
}

// DividendWindowDays is the trailing window used for TTM dividends.
func (c *Calculator) DividendWindowDays() int {
	return c.dividendWindowDays
}

// Compute derives the price-independent metrics from one disclosure, its
// share count and the dividends already filtered to the trailing window.
func (c *Calculator) Compute(fs models.DisclosureRecord, st models.ShareCountRecord, divs []models.Dividend) (*models.FundamentalMetrics, error) {
	items := fs.Items

	currentAssets, ok := Lookup(items, CurrentAssetsKeys...)
	if !ok {
		return nil, models.ErrCurrentAssetsMissing
	}

	m := &models.FundamentalMetrics{
		CurrentAssets:         currentAssets,
		CurrentLiabilities:    LookupPtr(items, CurrentLiabilitiesKeys...),
		NonCurrentLiabilities: LookupPtr(items, NonCurrentLiabilitiesKeys...),
	}

	totalLiabilities, ok := Lookup(items, TotalLiabilitiesKeys...)
	if !ok {
		if m.CurrentLiabilities == nil || m.NonCurrentLiabilities == nil {
			return nil, models.ErrLiabilitiesUndefined
		}
		totalLiabilities = *m.CurrentLiabilities + *m.NonCurrentLiabilities
	}
	m.TotalLiabilities = totalLiabilities
	m.NCAVTotal = currentAssets - totalLiabilities

	if st.SharesOutstanding == nil || *st.SharesOutstanding <= 0 || math.IsNaN(*st.SharesOutstanding) {
		return nil, fmt.Errorf("%w (statement disclosed %s)", models.ErrSharesUndefined, st.DisclosedDate.Format("2006-01-02"))
	}
	m.SharesOutstanding = *st.SharesOutstanding
	m.NCAVPS = m.NCAVTotal / m.SharesOutstanding

	c.auxiliary(items, m)
	c.dividends(divs, m)
	return m, nil
}

// auxiliary fills in the optional inputs and the return-on-capital proxy.
func (c *Calculator) auxiliary(items models.LineItems, m *models.FundamentalMetrics) {
	m.OperatingProfit = LookupPtr(items, OperatingProfitKeys...)
	m.NetIncome = LookupPtr(items, NetIncomeKeys...)
	m.Cash = LookupPtr(items, CashKeys...)
	m.Property = LookupPtr(items, PropertyKeys...)

	if debt, fields, ok := SumPresent(items, GrossDebtKeys...); ok {
		m.GrossDebt = models.Float(debt)
		m.GrossDebtFields = fields
		m.NetDebt = models.Float(debt - valueOr(m.Cash, 0))
	}

	if m.CurrentLiabilities == nil || m.OperatingProfit == nil {
		return
	}
	nwc := m.CurrentAssets - *m.CurrentLiabilities - valueOr(m.Cash, 0)
	base := nwc + valueOr(m.Property, 0)
	m.NWCOper = models.Float(nwc)
	m.CapitalBase = models.Float(base)
	if base > 0 {
		m.ReturnOnCapital = models.Float(*m.OperatingProfit / base)
	}
}

func (c *Calculator) dividends(divs []models.Dividend, m *models.FundamentalMetrics) {
	for _, d := range divs {
		if d.Amount == nil {
			continue
		}
		m.TTMDividend += *d.Amount
		m.DividendCount++
	}
}

// ApplyPrice fills in the price-dependent valuation metrics. price must be
// positive. The margin-of-safety rate belongs to the net-net decision and is
// not set here.
func ApplyPrice(m *models.FundamentalMetrics, price float64) {
	m.SharePrice = price

	mcap := price * m.SharesOutstanding
	m.MarketCap = models.Float(mcap)

	if m.GrossDebt != nil {
		m.EnterpriseValue = models.Float(mcap - valueOr(m.Cash, 0) + *m.GrossDebt)
	}
	if m.NetIncome != nil && mcap != 0 {
		m.EarningsYieldPE = models.Float(*m.NetIncome / mcap)
	}
	if m.OperatingProfit != nil && m.EnterpriseValue != nil && *m.EnterpriseValue != 0 {
		m.EarningsYieldEV = models.Float(*m.OperatingProfit / *m.EnterpriseValue)
	}
	if price > 0 {
		m.DividendYield = models.Float(m.TTMDividend / price)
	}
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
