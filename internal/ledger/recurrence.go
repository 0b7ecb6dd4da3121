// Package ledger expands recurring ledger entries onto calendar windows.
package ledger

import (
	"sort"
	"time"

	"kartoteka/internal/model"
)

// MaxOccurrenceSteps bounds how many recurrence steps one entry may take in a
// single expansion. A weekly entry reaches about 96 years with it, a monthly one
// over four centuries. Windows needing more are truncated.
const MaxOccurrenceSteps = 5000

// stepMonths returns the month stride of a month-based rule, or 0.
func stepMonths(rt model.RecurringType) int {
	switch rt {
	case model.RecurringMonthly:
		return 1
	case model.RecurringQuarterly:
		return 3
	case model.RecurringYearly:
		return 12
	}
	return 0
}

// Occurrence returns the date of occurrence k (k >= 0) of a rule starting at start.
// Month-based rules keep the start's day of month, clamped to the month's last day.
func Occurrence(start time.Time, rt model.RecurringType, k int) time.Time {
	if rt == model.RecurringWeekly {
		return start.AddDate(0, 0, 7*k)
	}
	if m := stepMonths(rt); m > 0 {
		return addMonthsClamped(start, m*k)
	}
	return start
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// firstStep estimates the first k whose occurrence can be on or after from.
// It never overshoots; the caller steps forward from it.
func firstStep(start time.Time, rt model.RecurringType, from time.Time) int {
	if !from.After(start) {
		return 0
	}
	if rt == model.RecurringWeekly {
		return int(from.Sub(start).Hours()/24) / 7
	}
	if m := stepMonths(rt); m > 0 {
		months := (from.Year()-start.Year())*12 + int(from.Month()) - int(start.Month())
		if k := months/m - 1; k > 0 {
			return k
		}
	}
	return 0
}

// Expand returns the occurrences of e inside [from, to], both inclusive calendar
// dates. Each occurrence is a copy of e with Date replaced. Dates ascend.
func Expand(e model.Expense, from, to time.Time) []model.Expense {
	if to.Before(from) {
		return nil
	}
	if e.RecurringType == model.RecurringNone || e.RecurringType == "" {
		if !e.Date.Before(from) && !e.Date.After(to) {
			return []model.Expense{e}
		}
		return nil
	}
	if e.RecurringType != model.RecurringWeekly && stepMonths(e.RecurringType) == 0 {
		return nil
	}

	var out []model.Expense
	k := firstStep(e.Date, e.RecurringType, from)
	for steps := 0; steps < MaxOccurrenceSteps; steps++ {
		d := Occurrence(e.Date, e.RecurringType, k)
		k++
		if d.Before(from) {
			continue
		}
		if d.After(to) {
			break
		}
		occ := e
		occ.Date = d
		out = append(out, occ)
	}
	return out
}

// ExpandAll expands every entry over [from, to] and orders the result newest
// first. Ties go to the later-created entry, then to the higher id.
func ExpandAll(entries []model.Expense, from, to time.Time) []model.Expense {
	var out []model.Expense
	for _, e := range entries {
		out = append(out, Expand(e, from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out
}
