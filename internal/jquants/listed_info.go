package jquants

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/models"
)

// ListedInfo fetches the listed-issue master as of date.
// Codes that cannot be normalized are skipped; duplicates keep their first row.
func (c *Client) ListedInfo(ctx context.Context, date time.Time) ([]models.ListedIssue, error) {
	params := url.Values{"date": {date.Format("2006-01-02")}}
	raw, err := c.Fetch(ctx, EndpointListedInfo, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listed info for %s: %w", date.Format("2006-01-02"), err)
	}

	seen := make(map[models.Ticker]bool)
	var issues []models.ListedIssue
	for _, r := range decodeRecords[ListedInfoRecord](EndpointListedInfo, raw) {
		ticker, err := models.NormalizeTicker(r.Code)
		if err != nil {
			log.Debugf("Skipping listed issue with code %q: %v", r.Code, err)
			continue
		}
		if seen[ticker] {
			continue
		}
		seen[ticker] = true

		issueDate := r.Date.Time
		if issueDate.IsZero() {
			issueDate = date
		}
		issues = append(issues, models.ListedIssue{
			Ticker:      ticker,
			Date:        issueDate,
			CompanyName: r.CompanyName,
			MarketCode:  r.MarketCode,
			MarketName:  r.MarketCodeName,
			Sector17:    r.Sector17CodeName,
		})
	}
	return issues, nil
}
