// Package recurring stores the standing weekly reservation attached to a membership subscription.
package recurring

import (
	"time"

	"github.com/tutorhub/tutorhub/pkg/slot"
)

// State is the lifecycle position of a subscription's standing reservation.
type State string

const (
	StateNone     State = "none"
	StateReserved State = "reserved"
	StateCanceled State = "canceled"
	StateExpired  State = "expired"
)

type RecurringBooking struct {
	Id             int
	SubscriptionId int
	InstructorId   int
	// OwnerId is the user owning the subscription.
	OwnerId   int
	DayOfWeek int
	StartSlot int
	Duration  int
	CreatedAt time.Time
}

func (r RecurringBooking) Range() slot.Range {
	return slot.Range{Start: r.StartSlot, Duration: r.Duration}
}

func (r RecurringBooking) Validate() error {
	if err := slot.ValidateWeekday(r.DayOfWeek); err != nil {
		return err
	}
	return r.Range().Validate()
}

// OccursOn reports whether the reservation falls on the UTC weekday of date.
func (r RecurringBooking) OccursOn(date time.Time) bool {
	return slot.Weekday(date) == r.DayOfWeek
}
