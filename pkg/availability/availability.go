package availability

import (
	"time"

	"github.com/tutorhub/tutorhub/pkg/slot"
)

// Window is a recurring weekly interval, in UTC slots, during which an instructor is bookable.
type Window struct {
	Id           int
	InstructorId int
	DayOfWeek    int
	StartSlot    int
	Duration     int
}

func (w Window) Range() slot.Range {
	return slot.Range{Start: w.StartSlot, Duration: w.Duration}
}

func (w Window) Validate() error {
	if err := slot.ValidateWeekday(w.DayOfWeek); err != nil {
		return err
	}
	return w.Range().Validate()
}

// BlockedInterval is an absolute one-off exception to the weekly availability.
type BlockedInterval struct {
	Id           int
	InstructorId int
	Start        time.Time
	End          time.Time
	Reason       string
}

// Overlaps reports whether the interval intersects [start, end).
func (b BlockedInterval) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && start.Before(b.End)
}

// LocalWindow is a weekly window entered in an instructor's own timezone.
type LocalWindow struct {
	DayOfWeek time.Weekday
	Start     slot.TimeOfDay
	End       slot.TimeOfDay
}
