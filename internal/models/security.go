package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMarket is the market suffix given to bare Tokyo Stock Exchange codes.
const DefaultMarket = "T"

// Ticker is an exchange-qualified symbol such as "7203.T".
type Ticker string

// NormalizeTicker converts user or API input into the canonical Ticker form.
// "7203" and "72030" (the 5-character API code) both become "7203.T".
// Symbols that already carry a market suffix are upper-cased and kept.
func NormalizeTicker(raw string) (Ticker, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty ticker")
	}
	if strings.ContainsAny(s, " \t,") {
		return "", fmt.Errorf("invalid ticker %q", raw)
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		if i == 0 || i == len(s)-1 {
			return "", fmt.Errorf("invalid ticker %q", raw)
		}
		return Ticker(s), nil
	}
	if len(s) == 5 && strings.HasSuffix(s, "0") {
		s = s[:4]
	}
	return Ticker(s + "." + DefaultMarket), nil
}

// Code returns the symbol without the market suffix.
func (t Ticker) Code() string {
	s := string(t)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i]
	}
	return s
}

// Market returns the market suffix, or "" if none.
func (t Ticker) Market() string {
	s := string(t)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// APICode returns the code the upstream API expects. Four-character Tokyo
// codes gain the trailing check digit "0".
func (t Ticker) APICode() string {
	code := t.Code()
	if t.Market() == DefaultMarket && len(code) == 4 {
		return code + "0"
	}
	return code
}

func (t Ticker) String() string {
	return string(t)
}

// DedupeTickers removes duplicates, keeping first-seen order.
func DedupeTickers(tickers []Ticker) []Ticker {
	seen := make(map[Ticker]struct{}, len(tickers))
	out := make([]Ticker, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ListedIssue is one row of the listed-issue master for a given date.
type ListedIssue struct {
	Ticker      Ticker
	Date        time.Time
	CompanyName string
	MarketCode  string
	MarketName  string
	Sector17    string
}

// DailyQuote is one trading day's price record for a security.
// Close is nil when the upstream record has no trade for the day.
type DailyQuote struct {
	Ticker        Ticker
	Date          time.Time
	Open          *float64
	High          *float64
	Low           *float64
	Close         *float64
	Volume        *float64
	AdjustedClose *float64
}

// HasClose reports whether the quote carries a usable closing price.
func (q DailyQuote) HasClose() bool {
	return q.Close != nil && *q.Close > 0
}

// Dividend is a declared distribution. Amount is per share.
type Dividend struct {
	Ticker           Ticker
	AnnouncementDate time.Time
	RecordDate       time.Time
	ExDate           time.Time
	Amount           *float64
	ReferenceNumber  string
}

// TickerPayload is everything collected for one ticker in a single fetch.
// It is the unit written to the checkpoint store.
type TickerPayload struct {
	Ticker     Ticker
	FetchedAt  time.Time
	Statements []ShareCountRecord
	FSDetails  []DisclosureRecord
	Dividends  []Dividend
	Quotes     []DailyQuote
	// HasQuotes is set when price history was collected, even if empty.
	HasQuotes bool
}
