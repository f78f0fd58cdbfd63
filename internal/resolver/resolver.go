// Package resolver selects the disclosure that was public as of an analysis date.
package resolver

import (
	"fmt"
	"sort"
	"time"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/util"
)

// Disclosed is implemented by every record with a public disclosure date.
type Disclosed interface {
	Disclosed() time.Time
}

// Resolution is the record selected for an analysis date.
type Resolution[T Disclosed] struct {
	Record  T
	AgeDays int
}

// Resolve returns the record with the latest disclosure date on or before
// analysisDate. Records disclosed on the same day resolve to the one that
// appears last in records. maxLookbehindDays <= 0 disables the staleness bound.
//
// Errors wrap models.ErrDataAbsent, models.ErrInsufficientHistory or models.ErrStale.
func Resolve[T Disclosed](records []T, analysisDate time.Time, maxLookbehindDays int) (Resolution[T], error) {
	var zero Resolution[T]
	if len(records) == 0 {
		return zero, models.ErrDataAbsent
	}

	sorted := make([]T, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return util.DateOnly(sorted[i].Disclosed()).Before(util.DateOnly(sorted[j].Disclosed()))
	})

	asOf := util.DateOnly(analysisDate)
	idx := -1
	for i, r := range sorted {
		if util.DateOnly(r.Disclosed()).After(asOf) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return zero, fmt.Errorf("%w: earliest is %s, analysis date %s",
			models.ErrInsufficientHistory, util.FormatDate(sorted[0].Disclosed()), util.FormatDate(asOf))
	}

	chosen := sorted[idx]
	age := util.DaysBetween(chosen.Disclosed(), asOf)
	if maxLookbehindDays > 0 && age > maxLookbehindDays {
		return zero, fmt.Errorf("%w: disclosed %s, %d days before %s (limit %d)",
			models.ErrStale, util.FormatDate(chosen.Disclosed()), age, util.FormatDate(asOf), maxLookbehindDays)
	}
	return Resolution[T]{Record: chosen, AgeDays: age}, nil
}

// DividendsAsOf returns the dividends whose record date falls in the
// windowDays on or before analysisDate and that were announced by then.
func DividendsAsOf(divs []models.Dividend, analysisDate time.Time, windowDays int) []models.Dividend {
	asOf := util.DateOnly(analysisDate)
	from := asOf.AddDate(0, 0, -windowDays)
	var out []models.Dividend
	for _, d := range divs {
		if d.RecordDate.IsZero() {
			continue
		}
		rd := util.DateOnly(d.RecordDate)
		if rd.Before(from) || rd.After(asOf) {
			continue
		}
		if !d.AnnouncementDate.IsZero() && util.DateOnly(d.AnnouncementDate).After(asOf) {
			continue
		}
		out = append(out, d)
	}
	return out
}
