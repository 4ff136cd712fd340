package timewindow

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MinutesPerDay is the length of a service day in minutes
const MinutesPerDay = 24 * 60

// DateLayout is the wire format for reservation dates
const DateLayout = "2006-01-02"

// ParseClock parses an "HH:MM" (or "HH:MM:SS") wall-clock time into minutes since midnight
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) > 5 && strings.Count(s, ":") == 2 {
		s = s[:5]
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// MustParseClock is ParseClock for trusted literals
func MustParseClock(s string) int {
	m, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FormatClock renders minutes since midnight as "HH:MM", wrapping past midnight
func FormatClock(minute int) string {
	m := ((minute % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps reports whether [startA, startA+durA) and [startB, startB+durB) intersect.
// Both intervals are half-open so back-to-back bookings do not collide.
func Overlaps(startA, durA, startB, durB int) bool {
	endA := startA + durA
	endB := startB + durB
	return startA < endB && startB < endA
}

// Interval is a half-open minute range on a single service date
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewInterval builds the interval starting at start lasting duration minutes
func NewInterval(start, duration int) Interval {
	return Interval{Start: start, End: start + duration}
}

// Overlaps reports whether two intervals intersect
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether minute falls inside the interval
func (i Interval) Contains(minute int) bool {
	return i.Start <= minute && minute < i.End
}

// InWindow reports whether minute lies in the operating window [start, end).
// Windows whose end is at or before their start cross midnight.
func InWindow(minute, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// Normalize maps a minute inside a midnight-crossing window onto a continuous
// axis starting at the window start, so late-night times sort after the opening.
func Normalize(minute, windowStart int) int {
	if minute < windowStart {
		return minute + MinutesPerDay
	}
	return minute
}

// RoundDownToSlot rounds minute down to the nearest slot boundary
func RoundDownToSlot(minute, slotMinutes int) int {
	if slotMinutes <= 0 {
		return minute
	}
	return minute - minute%slotMinutes
}

// Slots lists slot start times from start up to (not including) end, stepping
// by slotMinutes. Midnight-crossing windows yield values above MinutesPerDay;
// render them with FormatClock.
func Slots(start, end, slotMinutes int) []int {
	if slotMinutes <= 0 {
		return nil
	}
	if end <= start {
		end += MinutesPerDay
	}
	slots := make([]int, 0, (end-start)/slotMinutes+1)
	for m := start; m < end; m += slotMinutes {
		slots = append(slots, m)
	}
	return slots
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// At combines a date and a minute offset into an absolute instant in loc
func At(date string, minute int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	base := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return base.Add(time.Duration(minute) * time.Minute), nil
}

// HoursUntil returns the (possibly negative) number of hours from now until at
func HoursUntil(now, at time.Time) float64 {
	return at.Sub(now).Hours()
}

// LoadLocation resolves an IANA zone name, falling back to UTC
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MergeIntervals collapses overlapping or touching intervals, sorted by start
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
