// Package conflict decides whether a candidate slot range can be booked for an instructor.
package conflict

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

type Reason string

const (
	OutsideAvailability Reason = "OUTSIDE_AVAILABILITY"
	SlotTaken           Reason = "SLOT_TAKEN"
	ReservedForMember   Reason = "RESERVED_FOR_MEMBER"
)

// Result is a business outcome, not an error. An empty Reason means the range is bookable.
type Result struct {
	Reason Reason
	// BookingId or RecurringId identifies the occupant that caused the rejection.
	BookingId   int
	RecurringId int
}

func (r Result) Allowed() bool {
	return r.Reason == ""
}

type Availability interface {
	IsWithinAvailability(ctx context.Context, instructorId int, dayOfWeek int, start int, duration int) (bool, error)
	IsAvailableOn(ctx context.Context, instructorId int, date time.Time, start int, duration int) (bool, error)
}

type BookingReader interface {
	ListBooked(ctx context.Context, instructorId int, date time.Time) ([]booking.Booking, error)
	ListBookedFrom(ctx context.Context, instructorId int, from time.Time) ([]booking.Booking, error)
}

type RecurringReader interface {
	ListByInstructorDay(ctx context.Context, instructorId int, dayOfWeek int) ([]recurring.RecurringBooking, error)
}

type Resolver struct {
	availability Availability
	bookings     BookingReader
	recurring    RecurringReader
}

// NewResolver builds a resolver reading through the given sources. Callers holding a
// transaction pass transaction-bound readers so the check and the write see the same state.
func NewResolver(availability Availability, bookings BookingReader, recurring RecurringReader) *Resolver {
	return &Resolver{
		availability: availability,
		bookings:     bookings,
		recurring:    recurring,
	}
}

type Request struct {
	InstructorId int
	StudentId    int
	Date         time.Time
	Start        int
	Duration     int
	// ExcludeBookingId skips the booking that is being rescheduled.
	ExcludeBookingId int
}

func (r Request) Range() slot.Range {
	return slot.Range{Start: r.Start, Duration: r.Duration}
}

// Check evaluates availability, one-off bookings and standing reservations in that order
// and returns the first rejection.
func (r *Resolver) Check(ctx context.Context, req Request) (Result, error) {
	candidate := req.Range()
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}
	date := slot.Date(req.Date)

	available, err := r.availability.IsAvailableOn(ctx, req.InstructorId, date, req.Start, req.Duration)
	if err != nil {
		return Result{}, fmt.Errorf("check availability: %w", err)
	}
	if !available {
		return Result{Reason: OutsideAvailability}, nil
	}

	booked, err := r.bookings.ListBooked(ctx, req.InstructorId, date)
	if err != nil {
		return Result{}, fmt.Errorf("list bookings: %w", err)
	}
	for _, b := range booked {
		if b.Id == req.ExcludeBookingId {
			continue
		}
		if b.Range().Overlaps(candidate) {
			log.Debugf("slot %d+%d on %s taken by booking %d", req.Start, req.Duration, date.Format(time.DateOnly), b.Id)
			return Result{Reason: SlotTaken, BookingId: b.Id}, nil
		}
	}

	reservations, err := r.recurring.ListByInstructorDay(ctx, req.InstructorId, slot.Weekday(date))
	if err != nil {
		return Result{}, fmt.Errorf("list recurring bookings: %w", err)
	}
	for _, rb := range reservations {
		// the member may book concrete lessons inside their own reserved window
		if rb.OwnerId == req.StudentId {
			continue
		}
		if rb.Range().Overlaps(candidate) {
			return Result{Reason: ReservedForMember, RecurringId: rb.Id}, nil
		}
	}

	return Result{}, nil
}

type RecurringRequest struct {
	InstructorId int
	OwnerId      int
	DayOfWeek    int
	Start        int
	Duration     int
	// ExcludeId skips the recurring booking that is being updated.
	ExcludeId int
	// From is the first date whose one-off bookings must not collide with the reservation.
	From time.Time
}

func (r RecurringRequest) Range() slot.Range {
	return slot.Range{Start: r.Start, Duration: r.Duration}
}

// CheckRecurring validates a weekly candidate against general availability, the other
// standing reservations of that weekday and future one-off bookings of other students.
func (r *Resolver) CheckRecurring(ctx context.Context, req RecurringRequest) (Result, error) {
	if err := slot.ValidateWeekday(req.DayOfWeek); err != nil {
		return Result{}, err
	}
	candidate := req.Range()
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}

	within, err := r.availability.IsWithinAvailability(ctx, req.InstructorId, req.DayOfWeek, req.Start, req.Duration)
	if err != nil {
		return Result{}, fmt.Errorf("check availability: %w", err)
	}
	if !within {
		return Result{Reason: OutsideAvailability}, nil
	}

	reservations, err := r.recurring.ListByInstructorDay(ctx, req.InstructorId, req.DayOfWeek)
	if err != nil {
		return Result{}, fmt.Errorf("list recurring bookings: %w", err)
	}
	for _, rb := range reservations {
		if rb.Id == req.ExcludeId {
			continue
		}
		if rb.Range().Overlaps(candidate) {
			return Result{Reason: ReservedForMember, RecurringId: rb.Id}, nil
		}
	}

	upcoming, err := r.bookings.ListBookedFrom(ctx, req.InstructorId, slot.Date(req.From))
	if err != nil {
		return Result{}, fmt.Errorf("list bookings: %w", err)
	}
	for _, b := range upcoming {
		if b.StudentId == req.OwnerId || slot.Weekday(b.Date) != req.DayOfWeek {
			continue
		}
		if b.Range().Overlaps(candidate) {
			return Result{Reason: SlotTaken, BookingId: b.Id}, nil
		}
	}

	return Result{}, nil
}
