// Package history validates an applicant's employment history as a set of
// date-ranged entries: entry count, per-entry field checks, overlap and gap
// rules between adjacent periods, and an aggregate coverage requirement.
// Pure logic, no I/O.
package history

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the wire format of entry dates.
const DateLayout = "2006-01-02"

const (
	// MaxEntries caps how many employment periods one applicant may submit.
	MaxEntries = 5

	// GapExplanationDays is the non-overlapping gap length, in days, at and
	// above which the later entry must carry an explanation.
	GapExplanationDays = 30

	// Coverage thresholds, in inclusive days. History passes at two years
	// with a 30-day grace buffer, or at ten-plus years of full history.
	// The range in between fails: once an applicant exceeds two years and
	// the buffer, the full ten years must be provided. Business rule,
	// deliberately discontinuous.
	minCoverageDays   = 730
	graceCoverageDays = 760
	fullHistoryDays   = 3650
)

// Entry is one employment period. From and To use DateLayout.
// GapExplanationBefore explains the gap between this entry and the next
// older one, when that gap is GapExplanationDays or longer.
type Entry struct {
	EmployerName         string `json:"employer_name"`
	Position             string `json:"position"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	GapExplanationBefore string `json:"gap_explanation_before,omitempty"`
}

// CountError reports an empty or oversized entry list. When returned, no
// other checks have run.
type CountError struct {
	Count int
}

func (e *CountError) Error() string {
	if e.Count == 0 {
		return "employment history: at least one entry required"
	}
	return fmt.Sprintf("employment history: %d entries exceed the maximum of %d", e.Count, MaxEntries)
}

// EntryError reports a single invalid entry. Index refers to the input
// order. When returned, overlap/gap/coverage checks have not run.
type EntryError struct {
	Index  int
	Field  string
	Reason string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("employment history: entry %d: %s: %s", e.Index, e.Field, e.Reason)
}

// OverlapError reports two overlapping periods. Index refers to the earlier
// position in the most-recent-first sorted order.
type OverlapError struct {
	Index int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("employment history: entry %d overlaps the previous period", e.Index)
}

// GapError reports a gap of GapExplanationDays or more with no explanation
// on the later entry. Index refers to the most-recent-first sorted order.
type GapError struct {
	Index   int
	GapDays int
}

func (e *GapError) Error() string {
	return fmt.Sprintf("employment history: entry %d: %d-day gap requires an explanation", e.Index, e.GapDays)
}

// CoverageError reports that the summed day-spans miss the coverage policy.
// MonthsShort is set when the total falls short of the two-year minimum;
// FullHistoryRequired is set when the total exceeds the two-year grace
// window without reaching ten years.
type CoverageError struct {
	TotalDays           int
	MonthsShort         int
	FullHistoryRequired bool
}

func (e *CoverageError) Error() string {
	if e.FullHistoryRequired {
		return fmt.Sprintf("employment history: %d days covered; once two years plus grace is exceeded the full ten years must be provided", e.TotalDays)
	}
	return fmt.Sprintf("employment history: %d days covered, about %d months short of the two-year minimum", e.TotalDays, e.MonthsShort)
}

type period struct {
	from, to    time.Time
	explanation string
}

// Validate checks the entry set. Checks short-circuit in policy order:
// count, then per-entry, then overlap/gap over the most-recent-first sorted
// periods, then aggregate coverage.
func Validate(entries []Entry) error {
	if len(entries) == 0 || len(entries) > MaxEntries {
		return &CountError{Count: len(entries)}
	}

	periods := make([]period, 0, len(entries))
	for i, e := range entries {
		p, err := parseEntry(i, e)
		if err != nil {
			return err
		}
		periods = append(periods, p)
	}

	sortMostRecentFirst(periods)

	for i := 0; i+1 < len(periods); i++ {
		current, next := periods[i], periods[i+1]

		// the newer period must not start before the older one ends
		if current.from.Before(next.to) {
			return &OverlapError{Index: i}
		}

		gap := daysBetween(next.to, current.from)
		if gap >= GapExplanationDays && current.explanation == "" {
			return &GapError{Index: i, GapDays: gap}
		}
	}

	total := 0
	for _, p := range periods {
		total += daysBetween(p.from, p.to) + 1
	}

	switch {
	case total >= fullHistoryDays:
		return nil
	case total > graceCoverageDays:
		return &CoverageError{TotalDays: total, FullHistoryRequired: true}
	case total >= minCoverageDays:
		return nil
	default:
		short := (minCoverageDays - total + 29) / 30
		return &CoverageError{TotalDays: total, MonthsShort: short}
	}
}

func parseEntry(i int, e Entry) (period, error) {
	if e.EmployerName == "" {
		return period{}, &EntryError{Index: i, Field: "employer_name", Reason: "required"}
	}
	if e.Position == "" {
		return period{}, &EntryError{Index: i, Field: "position", Reason: "required"}
	}

	from, err := time.Parse(DateLayout, e.From)
	if err != nil {
		return period{}, &EntryError{Index: i, Field: "from", Reason: "invalid date"}
	}
	to, err := time.Parse(DateLayout, e.To)
	if err != nil {
		return period{}, &EntryError{Index: i, Field: "to", Reason: "invalid date"}
	}
	if !from.Before(to) {
		return period{}, &EntryError{Index: i, Field: "from", Reason: "must be before to"}
	}

	return period{from: from, to: to, explanation: e.GapExplanationBefore}, nil
}

// sortMostRecentFirst orders periods by start date descending. Gap and
// overlap are defined over adjacent pairs in this order, not input order.
func sortMostRecentFirst(periods []period) {
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].from.After(periods[j].from)
	})
}

// daysBetween counts whole days from a to b. Both are UTC midnights from
// time.Parse, so the division is exact. Unix seconds keep the arithmetic
// safe over the full DateLayout range, where Sub would overflow its
// nanosecond representation past ~292 years.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / 86400)
}
