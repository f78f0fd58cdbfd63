package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epeers/netnet/internal/models"
)

// ScreeningRepository stores net-net results in Postgres.
type ScreeningRepository struct {
	pool *pgxpool.Pool
}

// NewScreeningRepository creates a new ScreeningRepository
func NewScreeningRepository(pool *pgxpool.Pool) *ScreeningRepository {
	return &ScreeningRepository{pool: pool}
}

const resultColumns = `ticker, analysis_date, run_id, fs_date, st_date, fs_st_skew_days,
	fs_report_type, st_report_type, price_date, share_price, shares_outstanding,
	current_assets, total_liabilities, ncav_total, ncavps, mos_rate,
	market_cap, enterprise_value, net_income, operating_profit, gross_debt, gross_debt_fields,
	return_on_capital, earnings_yield_pe, earnings_yield_ev, ttm_dividend, dividend_yield`

// InsertResults stores results, leaving rows already present for the same
// ticker and analysis date untouched. It returns the number of new rows.
func (r *ScreeningRepository) InsertResults(ctx context.Context, results []models.ScreeningResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO screening_results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (ticker, analysis_date) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, res := range results {
		fields := res.GrossDebtFields
		if fields == nil {
			fields = []string{}
		}
		batch.Queue(query,
			string(res.Ticker), res.AnalysisDate, res.RunID, res.FSDate, res.STDate, res.FSSTSkewDays,
			res.FSReportType, res.STReportType, res.PriceDate, res.SharePrice, res.SharesOutstanding,
			res.CurrentAssets, res.TotalLiabilities, res.NCAVTotal, res.NCAVPS, res.MarginOfSafetyRate,
			res.MarketCap, res.EnterpriseValue, res.NetIncome, res.OperatingProfit, res.GrossDebt, fields,
			res.ReturnOnCapital, res.EarningsYieldPE, res.EarningsYieldEV, res.TTMDividend, res.DividendYield,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for _, res := range results {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert result for %s: %w", res.Ticker, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListByDate returns the results for one analysis date ordered by margin of safety.
func (r *ScreeningRepository) ListByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM screening_results
		WHERE analysis_date = $1
		ORDER BY mos_rate ASC, ticker ASC
	`
	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query screening results: %w", err)
	}
	defer rows.Close()

	var results []models.ScreeningResult
	for rows.Next() {
		var (
			res    models.ScreeningResult
			ticker string
		)
		if err := rows.Scan(
			&ticker, &res.AnalysisDate, &res.RunID, &res.FSDate, &res.STDate, &res.FSSTSkewDays,
			&res.FSReportType, &res.STReportType, &res.PriceDate, &res.SharePrice, &res.SharesOutstanding,
			&res.CurrentAssets, &res.TotalLiabilities, &res.NCAVTotal, &res.NCAVPS, &res.MarginOfSafetyRate,
			&res.MarketCap, &res.EnterpriseValue, &res.NetIncome, &res.OperatingProfit, &res.GrossDebt, &res.GrossDebtFields,
			&res.ReturnOnCapital, &res.EarningsYieldPE, &res.EarningsYieldEV, &res.TTMDividend, &res.DividendYield,
		); err != nil {
			return nil, fmt.Errorf("failed to scan screening result: %w", err)
		}
		res.Ticker = models.Ticker(ticker)
		res.IsNetNet = true
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListDates returns the analysis dates with stored results, newest first.
func (r *ScreeningRepository) ListDates(ctx context.Context) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT analysis_date FROM screening_results ORDER BY analysis_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan analysis date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
