package booking

import (
	"time"

	"github.com/tutorhub/tutorhub/pkg/slot"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentMethod string

const (
	// PaymentCredits debits the student's credit balance when the booking is made.
	PaymentCredits      PaymentMethod = "credits"
	PaymentCard         PaymentMethod = "card"
	PaymentSubscription PaymentMethod = "subscription"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCredits, PaymentCard, PaymentSubscription:
		return true
	}
	return false
}

// Source records who created the booking.
type Source string

const (
	SourceStudent    Source = "student"
	SourceInstructor Source = "instructor"
	SourceAdmin      Source = "admin"
)

type Booking struct {
	Id           int
	Uid          string
	InstructorId int
	StudentId    int
	// Date is the UTC midnight of the day the slots belong to.
	Date           time.Time
	StartSlot      int
	Duration       int
	Status         Status
	PaymentMethod  PaymentMethod
	Source         Source
	CreditsCharged int
	CreatedAt      time.Time
}

func (b Booking) Range() slot.Range {
	return slot.Range{Start: b.StartSlot, Duration: b.Duration}
}

func (b Booking) StartTime() time.Time {
	return slot.ToTime(b.StartSlot, b.Date)
}

func (b Booking) EndTime() time.Time {
	return slot.ToTime(b.StartSlot+b.Duration, b.Date)
}

func (b Booking) IsActive() bool {
	return b.Status == StatusBooked
}
