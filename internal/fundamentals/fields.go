package fundamentals

import "github.com/epeers/netnet/internal/models"

// Ordered key lists for each line item. The first key holding a parseable
// number wins; IFRS labels come first.
var (
	CurrentAssetsKeys         = []string{"Current assets (IFRS)", "Current assets"}
	TotalLiabilitiesKeys      = []string{"Liabilities (IFRS)", "Liabilities"}
	CurrentLiabilitiesKeys    = []string{"Current liabilities (IFRS)", "Current liabilities"}
	NonCurrentLiabilitiesKeys = []string{"Non-current liabilities (IFRS)", "Non-current liabilities", "Noncurrent liabilities"}
	OperatingProfitKeys       = []string{"Operating profit (loss) (IFRS)", "Operating profit (loss)", "Operating income"}
	NetIncomeKeys             = []string{
		"Profit (loss) attributable to owners of parent (IFRS)",
		"Profit (loss) attributable to owners of parent",
		"Net income",
	}
	CashKeys     = []string{"Cash and cash equivalents (IFRS)", "Cash and cash equivalents", "Cash and deposits"}
	PropertyKeys = []string{"Property, plant and equipment (IFRS)", "Property, plant and equipment", "Total property, plant and equipment"}

	// Every present item is summed into gross debt.
	GrossDebtKeys = []string{
		"Short-term borrowings",
		"Short-term loans payable",
		"Commercial papers",
		"Current portion of bonds",
		"Current portion of long-term borrowings",
		"Current portion of long-term loans payable",
		"Bonds payable",
		"Long-term borrowings",
		"Long-term loans payable",
		"Bonds and borrowings - CL (IFRS)",
		"Bonds and borrowings - NCL (IFRS)",
		"Borrowings - CL (IFRS)",
		"Borrowings - NCL (IFRS)",
	}
)

// Lookup returns the first key in keys whose value parses as a number.
func Lookup(items models.LineItems, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := items[k]
		if !ok {
			continue
		}
		if f, ok := models.ParseNumber(v); ok {
			return f, true
		}
	}
	return 0, false
}

// LookupPtr is Lookup returning nil when no key is present.
func LookupPtr(items models.LineItems, keys ...string) *float64 {
	f, ok := Lookup(items, keys...)
	if !ok {
		return nil
	}
	return &f
}

// SumPresent adds every parseable item in keys and lists the keys used.
// ok is false when none was present.
func SumPresent(items models.LineItems, keys ...string) (sum float64, used []string, ok bool) {
	for _, k := range keys {
		v, present := items[k]
		if !present {
			continue
		}
		f, parsed := models.ParseNumber(v)
		if !parsed {
			continue
		}
		sum += f
		used = append(used, k)
	}
	return sum, used, len(used) > 0
}
