// Package google imports busy time from instructors' Google calendars.
package google

import (
	"time"

	"github.com/tutorhub/tutorhub/pkg/slot"
)

type AllDayPolicy string

const (
	// AllDayIgnore drops all-day events; they usually mark holidays or reminders.
	AllDayIgnore AllDayPolicy = "ignore"
	// AllDayBlock blocks the instructor's availability on the days an all-day event covers.
	AllDayBlock AllDayPolicy = "block"
)

func (p AllDayPolicy) Valid() bool {
	return p == AllDayIgnore || p == AllDayBlock
}

// Block is an external busy interval on one UTC date. It is never persisted.
type Block struct {
	EventId   string
	Summary   string
	Date      time.Time
	StartSlot int
	Duration  int
}

func (b Block) Range() slot.Range {
	return slot.Range{Start: b.StartSlot, Duration: b.Duration}
}

func (b Block) StartTime() time.Time {
	return slot.ToTime(b.StartSlot, b.Date)
}

func (b Block) EndTime() time.Time {
	return slot.ToTime(b.StartSlot+b.Duration, b.Date)
}

type Settings struct {
	InstructorId int
	CalendarId   string
	AllDayPolicy AllDayPolicy
}
