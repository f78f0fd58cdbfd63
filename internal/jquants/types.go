package jquants

import (
	"bytes"
	"encoding/json"

	"github.com/epeers/netnet/internal/models"
)

// flexString accepts a JSON string, number or null. Upstream numeric fields
// are sometimes quoted and sometimes not.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*f = flexString(b)
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// StatementRecord is one record of /v1/fins/statements.
type StatementRecord struct {
	DisclosedDate       models.FlexibleDate `json:"DisclosedDate"`
	LocalCode           string              `json:"LocalCode"`
	TypeOfDocument      string              `json:"TypeOfDocument"`
	TypeOfCurrentPeriod string              `json:"TypeOfCurrentPeriod"`
	TotalAssets         flexString          `json:"TotalAssets"`
	Equity              flexString          `json:"Equity"`
	SharesOutstanding   flexString          `json:"NumberOfIssuedAndOutstandingSharesAtTheEndOfFiscalYearIncludingTreasuryStock"`
	TreasuryShares      flexString          `json:"NumberOfTreasuryStockAtTheEndOfFiscalYear"`
}

// FSDetailRecord is one record of /v1/fins/fs_details.
type FSDetailRecord struct {
	DisclosedDate      models.FlexibleDate   `json:"DisclosedDate"`
	LocalCode          string                `json:"LocalCode"`
	TypeOfDocument     string                `json:"TypeOfDocument"`
	FinancialStatement map[string]flexString `json:"FinancialStatement"`
}

// DividendRecord is one record of /v1/fins/dividend.
type DividendRecord struct {
	Code               string              `json:"Code"`
	AnnouncementDate   models.FlexibleDate `json:"AnnouncementDate"`
	RecordDate         models.FlexibleDate `json:"RecordDate"`
	ExDate             models.FlexibleDate `json:"ExDate"`
	DistributionAmount flexString          `json:"DistributionAmount"`
	ReferenceNumber    string              `json:"ReferenceNumber"`
}

// DailyQuoteRecord is one record of /v1/prices/daily_quotes.
type DailyQuoteRecord struct {
	Date            models.FlexibleDate `json:"Date"`
	Code            string              `json:"Code"`
	Open            *float64            `json:"Open"`
	High            *float64            `json:"High"`
	Low             *float64            `json:"Low"`
	Close           *float64            `json:"Close"`
	Volume          *float64            `json:"Volume"`
	AdjustmentClose *float64            `json:"AdjustmentClose"`
}

// ListedInfoRecord is one record of /v1/listed/info.
type ListedInfoRecord struct {
	Date             models.FlexibleDate `json:"Date"`
	Code             string              `json:"Code"`
	CompanyName      string              `json:"CompanyName"`
	MarketCode       string              `json:"MarketCode"`
	MarketCodeName   string              `json:"MarketCodeName"`
	Sector17CodeName string              `json:"Sector17CodeName"`
}
