// Package slots defines the fixed daily grid of bookable time points.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DayStart is the first slot of the day in minutes after midnight (07:00).
	DayStart = 7 * 60
	// DayEnd is the last slot of the day in minutes after midnight (19:00).
	DayEnd = 19 * 60
	// StepMinutes is the distance between two neighbouring slots.
	StepMinutes = 30
	// DateLayout is the only accepted textual date form.
	DateLayout = "2006-01-02"
)

// Slot is a time label from the grid, e.g. "07:00".
type Slot string

var (
	grid    []Slot
	ordinal map[Slot]int
)

func init() {
	for m := DayStart; m <= DayEnd; m += StepMinutes {
		grid = append(grid, Slot(fmt.Sprintf("%02d:%02d", m/60, m%60)))
	}
	ordinal = make(map[Slot]int, len(grid))
	for i, s := range grid {
		ordinal[s] = i
	}
}

// Grid returns the ordered daily sequence of slots.
func Grid() []Slot {
	out := make([]Slot, len(grid))
	copy(out, grid)
	return out
}

// Len returns the number of slots in a day.
func Len() int {
	return len(grid)
}

// Index returns the ordinal of a slot label.
func Index(s Slot) (int, bool) {
	i, ok := ordinal[s]
	return i, ok
}

// At returns the slot at ordinal i.
func At(i int) (Slot, bool) {
	if i < 0 || i >= len(grid) {
		return "", false
	}
	return grid[i], true
}

// RequiredSlotCount returns how many consecutive slots a duration needs.
func RequiredSlotCount(durationMinutes int) int {
	n := (durationMinutes + StepMinutes - 1) / StepMinutes
	if n < 1 {
		return 1
	}
	return n
}

// Span returns count consecutive slots starting at start.
// It reports false if the span would run past the end of the day.
func Span(start Slot, count int) ([]Slot, bool) {
	idx, ok := ordinal[start]
	if !ok || count <= 0 || idx+count > len(grid) {
		return nil, false
	}
	out := make([]Slot, count)
	copy(out, grid[idx:idx+count])
	return out, true
}

// Parse normalizes a "H:MM"/"HH:MM" label and checks it is on the grid.
func Parse(label string) (Slot, error) {
	parts := strings.Split(strings.TrimSpace(label), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format: %q", label)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid minute: %w", err)
	}

	s := Slot(fmt.Sprintf("%02d:%02d", hour, minute))
	if _, ok := ordinal[s]; !ok {
		return "", fmt.Errorf("time %s is not on the %d-minute grid %s-%s", s, StepMinutes, grid[0], grid[len(grid)-1])
	}
	return s, nil
}

// ParseRange expands "HH:MM-HH:MM" into every grid slot from start up to and
// including end.
func ParseRange(label string) ([]Slot, error) {
	from, to, found := strings.Cut(label, "-")
	if !found {
		s, err := Parse(label)
		if err != nil {
			return nil, err
		}
		return []Slot{s}, nil
	}

	start, err := Parse(from)
	if err != nil {
		return nil, err
	}
	end, err := Parse(to)
	if err != nil {
		return nil, err
	}

	i, j := ordinal[start], ordinal[end]
	if j < i {
		return nil, fmt.Errorf("range %q ends before it starts", label)
	}
	out := make([]Slot, j-i+1)
	copy(out, grid[i:j+1])
	return out, nil
}

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DayOfWeek returns the weekday with Monday = 0 ... Sunday = 6.
func DayOfWeek(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// FormatDuration formats duration in minutes to human-readable string.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
