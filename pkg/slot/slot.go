// Package slot converts between wall-clock time and 15-minute slot indices of a UTC day.
package slot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PerDay is the number of slots in a UTC day.
	PerDay = 96
	// Length is the duration of one slot.
	Length = 15 * time.Minute
	// ExternalGranularity is the boundary external busy blocks are aligned to.
	ExternalGranularity = 30 * time.Minute
)

var ErrInvalidInput = errors.New("invalid slot input")

// Range is a half-open slot range [Start, Start+Duration).
type Range struct {
	Start    int
	Duration int
}

func (r Range) End() int {
	return r.Start + r.Duration
}

func (r Range) Overlaps(other Range) bool {
	return Overlaps(r.Start, r.Duration, other.Start, other.Duration)
}

// Contains reports whether other lies entirely inside r.
func (r Range) Contains(other Range) bool {
	return r.Start <= other.Start && other.End() <= r.End()
}

// Overlaps is the half-open overlap test; it is symmetric in its arguments.
func Overlaps(a, da, b, db int) bool {
	return a < b+db && b < a+da
}

// Validate checks a range that is about to be persisted.
func (r Range) Validate() error {
	if r.Start < 0 || r.Start >= PerDay {
		return fmt.Errorf("%w: start slot %d out of range", ErrInvalidInput, r.Start)
	}
	if r.Duration < 1 {
		return fmt.Errorf("%w: duration must be at least one slot", ErrInvalidInput)
	}
	if r.End() > PerDay {
		return fmt.Errorf("%w: range %d+%d crosses the day boundary", ErrInvalidInput, r.Start, r.Duration)
	}
	return nil
}

func ValidateWeekday(day int) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("%w: day of week %d out of range", ErrInvalidInput, day)
	}
	return nil
}

// Date returns the UTC midnight of the day containing t.
func Date(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Weekday returns the UTC day of week of t, 0 = Sunday.
func Weekday(t time.Time) int {
	return int(t.UTC().Weekday())
}

// FromTime returns the slot of the UTC day containing t.
func FromTime(t time.Time) int {
	u := t.UTC()
	return u.Hour()*4 + u.Minute()/15
}

// Extended returns the number of whole slots between the UTC midnight of ref and t.
// The result may be >= PerDay when t falls on a later UTC day; callers must Split
// before persisting.
func Extended(ref time.Time, t time.Time) int {
	return floorDiv(t.Sub(Date(ref)), Length)
}

// ToTime returns the instant at which slot s of the UTC date starts.
func ToTime(s int, date time.Time) time.Time {
	return Date(date).Add(time.Duration(s) * Length)
}

// Aligned reports whether t sits exactly on a slot boundary.
func Aligned(t time.Time) bool {
	return t.Equal(t.Truncate(Length))
}

// FromInstants converts a [start, end) instant pair into a UTC date and slot range.
// The range must start and end on slot boundaries and stay within one UTC day
// (ending exactly at the next midnight is allowed).
func FromInstants(start, end time.Time) (time.Time, Range, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, Range{}, fmt.Errorf("%w: start and end are required", ErrInvalidInput)
	}
	if !end.After(start) {
		return time.Time{}, Range{}, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	if !Aligned(start) || !Aligned(end) {
		return time.Time{}, Range{}, fmt.Errorf("%w: times must be multiples of 15 minutes", ErrInvalidInput)
	}
	date := Date(start)
	r := Range{Start: FromTime(start), Duration: int(end.Sub(start) / Length)}
	if err := r.Validate(); err != nil {
		return time.Time{}, Range{}, err
	}
	return date, r, nil
}

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrInvalidInput, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: hour in %q", ErrInvalidInput, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: minute in %q", ErrInvalidInput, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// LocalToUTC places a local wall-clock time on the given calendar date in loc and returns
// the UTC reference date and the extended slot relative to it. The offset is the one loc
// has on that date, so DST transitions are honoured. A local time inside a spring-forward
// gap is normalized by time.Date (moved forward by the gap).
//
// For zones ahead of UTC the reference date moves back a day so the slot is never negative;
// it can still be >= PerDay for zones behind UTC.
func LocalToUTC(tod TimeOfDay, date time.Time, loc *time.Location) (time.Time, int) {
	local := time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc)
	ref := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	s := Extended(ref, local)
	for s < 0 {
		ref = ref.AddDate(0, 0, -1)
		s += PerDay
	}
	return ref, s
}

// Placement is a persisted-safe range on a concrete UTC date.
type Placement struct {
	Date time.Time
	Range
}

// Split wraps an extended range into ranges that each stay inside one UTC day.
func Split(date time.Time, start, duration int) []Placement {
	day := Date(date)
	for start >= PerDay {
		day = day.AddDate(0, 0, 1)
		start -= PerDay
	}
	var out []Placement
	for duration > 0 {
		n := duration
		if start+n > PerDay {
			n = PerDay - start
		}
		out = append(out, Placement{Date: day, Range: Range{Start: start, Duration: n}})
		duration -= n
		start = 0
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// CoverHalfHours widens [start, end) to 30-minute boundaries. The start never moves later
// and the end never moves earlier, so an external event is never under-blocked. Each side
// grows by less than 30 minutes, so the block is at most just under an hour longer than
// the event (10:29-10:31 covers 10:00-11:00).
func CoverHalfHours(start, end time.Time) (time.Time, time.Time) {
	s := start.UTC().Truncate(ExternalGranularity)
	e := end.UTC().Truncate(ExternalGranularity)
	if e.Before(end) {
		e = e.Add(ExternalGranularity)
	}
	return s, e
}

// Cover converts an arbitrary instant interval into per-day slot placements using
// the half-hour covering policy.
func Cover(start, end time.Time) []Placement {
	if !end.After(start) {
		return nil
	}
	s, e := CoverHalfHours(start, end)
	return Split(Date(s), FromTime(s), int(e.Sub(s)/Length))
}

func floorDiv(d, unit time.Duration) int {
	q := d / unit
	if d%unit != 0 && d < 0 {
		q--
	}
	return int(q)
}
