package jquants

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/models"
)

// Data endpoints. The JSON key holding each endpoint's records is its last path segment.
const (
	EndpointStatements  = "/v1/fins/statements"
	EndpointFSDetails   = "/v1/fins/fs_details"
	EndpointDividend    = "/v1/fins/dividend"
	EndpointDailyQuotes = "/v1/prices/daily_quotes"
	EndpointListedInfo  = "/v1/listed/info"
)

// decodeRecords unmarshals each raw record into T, dropping malformed ones.
func decodeRecords[T any](endpoint string, raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var rec T
		if err := json.Unmarshal(r, &rec); err != nil {
			log.Warnf("Skipping malformed %s record %d: %v", endpoint, i, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func codeParams(t models.Ticker) url.Values {
	return url.Values{"code": {t.APICode()}}
}

// Statements fetches the summary statements carrying share counts.
func (c *Client) Statements(ctx context.Context, t models.Ticker) ([]models.ShareCountRecord, error) {
	raw, err := c.Fetch(ctx, EndpointStatements, codeParams(t))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statements for %s: %w", t, err)
	}
	var out []models.ShareCountRecord
	for _, r := range decodeRecords[StatementRecord](EndpointStatements, raw) {
		if r.DisclosedDate.IsZero() {
			continue
		}
		out = append(out, models.ShareCountRecord{
			Ticker:            t,
			DisclosedDate:     r.DisclosedDate.Time,
			ReportType:        r.TypeOfDocument,
			PeriodType:        r.TypeOfCurrentPeriod,
			TotalAssets:       models.ParseNumberPtr(string(r.TotalAssets)),
			Equity:            models.ParseNumberPtr(string(r.Equity)),
			SharesOutstanding: models.ParseNumberPtr(string(r.SharesOutstanding)),
			TreasuryShares:    models.ParseNumberPtr(string(r.TreasuryShares)),
		})
	}
	return out, nil
}

// FSDetails fetches the detailed financial statements.
func (c *Client) FSDetails(ctx context.Context, t models.Ticker) ([]models.DisclosureRecord, error) {
	raw, err := c.Fetch(ctx, EndpointFSDetails, codeParams(t))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fs_details for %s: %w", t, err)
	}
	var out []models.DisclosureRecord
	for _, r := range decodeRecords[FSDetailRecord](EndpointFSDetails, raw) {
		if r.DisclosedDate.IsZero() {
			continue
		}
		items := make(models.LineItems, len(r.FinancialStatement))
		for k, v := range r.FinancialStatement {
			items[k] = string(v)
		}
		out = append(out, models.DisclosureRecord{
			Ticker:        t,
			DisclosedDate: r.DisclosedDate.Time,
			ReportType:    r.TypeOfDocument,
			PeriodType:    items[models.ItemPeriodType],
			FiscalYearEnd: items[models.ItemFiscalYearEnd],
			Items:         items,
		})
	}
	return out, nil
}

// Dividends fetches declared dividends.
func (c *Client) Dividends(ctx context.Context, t models.Ticker) ([]models.Dividend, error) {
	raw, err := c.Fetch(ctx, EndpointDividend, codeParams(t))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dividends for %s: %w", t, err)
	}
	records := decodeRecords[DividendRecord](EndpointDividend, raw)
	out := make([]models.Dividend, 0, len(records))
	for _, r := range records {
		out = append(out, models.Dividend{
			Ticker:           t,
			AnnouncementDate: r.AnnouncementDate.Time,
			RecordDate:       r.RecordDate.Time,
			ExDate:           r.ExDate.Time,
			Amount:           models.ParseNumberPtr(string(r.DistributionAmount)),
			ReferenceNumber:  r.ReferenceNumber,
		})
	}
	return out, nil
}

// DailyQuotes fetches the full daily price history.
func (c *Client) DailyQuotes(ctx context.Context, t models.Ticker) ([]models.DailyQuote, error) {
	raw, err := c.Fetch(ctx, EndpointDailyQuotes, codeParams(t))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily quotes for %s: %w", t, err)
	}
	return toQuotes(t, decodeRecords[DailyQuoteRecord](EndpointDailyQuotes, raw)), nil
}

// DailyQuote fetches the quote for a single day. It returns nil, nil when
// the day has no record.
func (c *Client) DailyQuote(ctx context.Context, t models.Ticker, date time.Time) (*models.DailyQuote, error) {
	params := codeParams(t)
	params.Set("date", date.Format("2006-01-02"))
	raw, err := c.Fetch(ctx, EndpointDailyQuotes, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily quote for %s on %s: %w", t, date.Format("2006-01-02"), err)
	}
	quotes := toQuotes(t, decodeRecords[DailyQuoteRecord](EndpointDailyQuotes, raw))
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

func toQuotes(t models.Ticker, records []DailyQuoteRecord) []models.DailyQuote {
	out := make([]models.DailyQuote, 0, len(records))
	for _, r := range records {
		if r.Date.IsZero() {
			continue
		}
		out = append(out, models.DailyQuote{
			Ticker:        t,
			Date:          r.Date.Time,
			Open:          r.Open,
			High:          r.High,
			Low:           r.Low,
			Close:         r.Close,
			Volume:        r.Volume,
			AdjustedClose: r.AdjustmentClose,
		})
	}
	return out
}
