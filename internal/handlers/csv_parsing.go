package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/output"
	"github.com/epeers/netnet/internal/util"
)

// ParseTickerCSV parses an uploaded universe CSV. The ticker column may be
// named "ticker" or "code"; other columns are ignored. Rows with an empty
// ticker are skipped and duplicates keep their first position.
func ParseTickerCSV(r io.Reader) ([]models.Ticker, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idx := -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "ticker", "code":
			if idx < 0 {
				idx = i
			}
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("missing required column: ticker")
	}

	var tickers []models.Ticker
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to read CSV record: %w", rowNum+1, err)
		}
		rowNum++

		if idx >= len(record) || strings.TrimSpace(record[idx]) == "" {
			continue
		}
		t, err := models.NormalizeTicker(record[idx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		tickers = append(tickers, t)
	}

	return models.DedupeTickers(tickers), nil
}

// ParseScreeningCSV reads a results file written by the output sink.
// Columns are matched by name so files with fewer trailing columns still load.
func ParseScreeningCSV(r io.Reader) ([]models.ScreeningResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIdx := make(map[string]int)
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"ticker", "analysis_date", "ncavps", "share_price", "mos_rate"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var results []models.ScreeningResult
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to read CSV record: %w", rowNum+1, err)
		}
		rowNum++

		p := rowParser{record: record, colIdx: colIdx}
		res := models.ScreeningResult{
			Ticker:             models.Ticker(p.str("ticker")),
			RunID:              p.str("run_id"),
			AnalysisDate:       p.date("analysis_date"),
			FSDate:             p.date("fs_date"),
			STDate:             p.date("st_date"),
			FSReportType:       p.str("fs_report_type"),
			STReportType:       p.str("st_report_type"),
			NCAVPS:             p.float("ncavps"),
			SharePrice:         p.float("share_price"),
			MarginOfSafetyRate: p.float("mos_rate"),
			MarketCap:          p.optional("market_cap"),
			EnterpriseValue:    p.optional("enterprise_value"),
			SharesOutstanding:  p.float("ey_shares_out"),
			NetIncome:          p.optional("ey_net_income"),
			OperatingProfit:    p.optional("operating_profit"),
			GrossDebt:          p.optional("ey_gross_debt"),
			EarningsYieldPE:    p.optional("ey_pe"),
			EarningsYieldEV:    p.optional("ey_ev"),
			CurrentAssets:      p.float("roc_current_assets"),
			CurrentLiabilities: p.optional("roc_current_liabilities"),
			Cash:               p.optional("roc_cash_and_equivalents"),
			Property:           p.optional("roc_property"),
			NWCOper:            p.optional("roc_nwc_oper"),
			CapitalBase:        p.optional("roc_capital_base"),
			ReturnOnCapital:    p.optional("roc"),
			TTMDividend:        p.float("ttm_dividend"),
			DividendYield:      p.optional("dividend_yield"),
			IsNetNet:           true,
		}
		if s := p.str("fs_gross_debt_fields"); s != "" {
			res.GrossDebtFields = strings.Split(s, output.GrossDebtFieldSep)
		}
		if s := p.str("fs_st_skew_days"); s != "" {
			res.FSSTSkewDays, _ = strconv.Atoi(s)
		}
		if p.err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, p.err)
		}
		if res.Ticker == "" {
			return nil, fmt.Errorf("row %d: ticker is empty", rowNum)
		}
		results = append(results, res)
	}

	return results, nil
}

// rowParser reads typed cells by column name, keeping the first error.
type rowParser struct {
	record []string
	colIdx map[string]int
	err    error
}

func (p *rowParser) str(col string) string {
	idx, ok := p.colIdx[col]
	if !ok || idx >= len(p.record) {
		return ""
	}
	return strings.TrimSpace(p.record[idx])
}

func (p *rowParser) optional(col string) *float64 {
	s := p.str(col)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s %q", col, s)
		}
		return nil
	}
	return &f
}

func (p *rowParser) float(col string) float64 {
	if f := p.optional(col); f != nil {
		return *f
	}
	return 0
}

func (p *rowParser) date(col string) time.Time {
	s := p.str(col)
	if s == "" {
		return time.Time{}
	}
	d, err := util.ParseDate(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}
