// Package timeslot holds the time arithmetic used by scheduling: half-open
// instant intervals, wall-clock windows within a day, and capacity checks.
package timeslot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates that end is strictly after start.
func NewInterval(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, apperr.Validation("invalid_interval", "end time must be after start time")
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether the two half-open intervals share any instant.
// Touching intervals (a.End == b.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

func (i Interval) Minutes() int { return int(i.Duration() / time.Minute) }

// Shift returns an interval of the same length starting at start.
func (i Interval) Shift(start time.Time) Interval {
	return Interval{Start: start, End: start.Add(i.Duration())}
}

// Clock is a wall-clock time of day in minutes since midnight. 1440 is
// accepted as the end of day.
type Clock int

const EndOfDay Clock = 24 * 60

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, apperr.Validation("invalid_time", "time %q must use HH:MM", s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, apperr.Validation("invalid_time", "time %q must use HH:MM", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// On returns the instant at this clock time on the given local date.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(c) * time.Minute)
}

// Window is the half-open wall-clock range [Start, End) within a day.
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// NewWindow validates start < end.
func NewWindow(start, end Clock) (Window, error) {
	if end <= start {
		return Window{}, apperr.Validation("invalid_window", "end time %s must be after start time %s", end, start)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) Contains(o Window) bool { return o.Start >= w.Start && o.End <= w.End }

func (w Window) Overlaps(o Window) bool { return w.Start < o.End && o.Start < w.End }

func (w Window) Minutes() int { return int(w.End - w.Start) }

// Interval materializes the window on a local date.
func (w Window) Interval(date time.Time, loc *time.Location) Interval {
	return Interval{Start: w.Start.On(date, loc), End: w.End.On(date, loc)}
}

// WindowOf projects an interval onto the wall clock of its start day in loc.
// Intervals that cross local midnight are rejected.
func WindowOf(i Interval, loc *time.Location) (Window, time.Time, error) {
	start := i.Start.In(loc)
	end := i.End.In(loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	var endMin Clock
	switch {
	case sameDate(start, end):
		endMin = wallClock(end)
	case end.Equal(time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, loc)):
		endMin = EndOfDay
	default:
		return Window{}, day, apperr.Validation("spans_midnight", "booking must start and end on the same day")
	}
	w, err := NewWindow(wallClock(start), endMin)
	return w, day, err
}

// wallClock reads the local clock face, so DST transition days keep their
// printed hours.
func wallClock(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// HasCapacity reports whether another booking fits. A nil max is unlimited.
func HasCapacity(current int, max *int) bool {
	return max == nil || current < *max
}

// DateKey formats a local calendar date as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid_date", "date %q must use YYYY-MM-DD", s)
	}
	return t, nil
}
