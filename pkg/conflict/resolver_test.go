package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/availability"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

var ctx = context.Background()

const (
	instructorId = 1
	memberId     = 100
	otherId      = 200
)

// 2026-01-05 is a Monday, 2026-01-06 a Tuesday
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
var tuesday = monday.AddDate(0, 0, 1)

var availabilityRepo = availability.NewRepositoryStub()
var bookingRepo = booking.NewRepositoryStub()
var recurringRepo = recurring.NewRepositoryStub()

var resolver *Resolver

func setup(t *testing.T) func() {
	availabilityService := availability.NewService(availabilityRepo, cache.NewMemory[[]availability.Window](0), nil, &utils.MockClock{FixedNow: monday})
	_, err := availabilityService.SetWeekly(ctx, instructorId, []availability.Window{
		{DayOfWeek: 1, StartSlot: 36, Duration: 32}, // Mon 09:00-17:00
		{DayOfWeek: 2, StartSlot: 36, Duration: 32}, // Tue 09:00-17:00
	})
	require.NoError(t, err)
	resolver = NewResolver(availabilityService, bookingRepo, recurringRepo)
	return func() {
		availabilityRepo.Reset()
		bookingRepo.Reset()
		recurringRepo.Reset()
	}
}

func givenBooking(t *testing.T, studentId int, date time.Time, start, duration int, status booking.Status) booking.Booking {
	b, err := bookingRepo.Create(ctx, booking.Booking{
		InstructorId:  instructorId,
		StudentId:     studentId,
		Date:          date,
		StartSlot:     start,
		Duration:      duration,
		Status:        status,
		PaymentMethod: booking.PaymentCard,
		Source:        booking.SourceStudent,
	})
	require.NoError(t, err)
	return b
}

func givenMembership(t *testing.T, subscriptionId, ownerId, dayOfWeek, start, duration int) recurring.RecurringBooking {
	rb, err := recurringRepo.Create(ctx, recurring.RecurringBooking{
		SubscriptionId: subscriptionId,
		InstructorId:   instructorId,
		OwnerId:        ownerId,
		DayOfWeek:      dayOfWeek,
		StartSlot:      start,
		Duration:       duration,
	})
	require.NoError(t, err)
	return rb
}

func TestResolver_Check(t *testing.T) {
	t.Run("should reject overlapping booked slot", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		existing := givenBooking(t, otherId, monday, 40, 4, booking.StatusBooked)

		// when
		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: memberId, Date: monday, Start: 42, Duration: 4})

		// then
		require.NoError(t, err)
		assert.Equal(t, SlotTaken, result.Reason)
		assert.Equal(t, existing.Id, result.BookingId)
		assert.False(t, result.Allowed())
	})

	t.Run("should allow adjacent and cancelled bookings", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenBooking(t, otherId, monday, 40, 4, booking.StatusBooked)
		givenBooking(t, otherId, monday, 44, 4, booking.StatusCancelled)

		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: memberId, Date: monday, Start: 44, Duration: 4})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should reject range outside weekly availability before looking at bookings", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenBooking(t, otherId, monday, 66, 4, booking.StatusBooked)

		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: memberId, Date: monday, Start: 66, Duration: 4})

		require.NoError(t, err)
		assert.Equal(t, OutsideAvailability, result.Reason)
	})

	t.Run("should let the member book inside their reserved window", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenMembership(t, 1, memberId, 2, 50, 4)

		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: memberId, Date: tuesday, Start: 50, Duration: 4})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should reserve the window against other students", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		rb := givenMembership(t, 1, memberId, 2, 50, 4)

		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: otherId, Date: tuesday, Start: 50, Duration: 4})

		require.NoError(t, err)
		assert.Equal(t, ReservedForMember, result.Reason)
		assert.Equal(t, rb.Id, result.RecurringId)
	})

	t.Run("should not apply a reservation to other weekdays", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenMembership(t, 1, memberId, 2, 50, 4)

		result, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: otherId, Date: monday, Start: 50, Duration: 4})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should ignore the booking being rescheduled", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		existing := givenBooking(t, memberId, monday, 40, 4, booking.StatusBooked)

		result, err := resolver.Check(ctx, Request{
			InstructorId:     instructorId,
			StudentId:        memberId,
			Date:             monday,
			Start:            42,
			Duration:         4,
			ExcludeBookingId: existing.Id,
		})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should reject invalid range as input error", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := resolver.Check(ctx, Request{InstructorId: instructorId, StudentId: memberId, Date: monday, Start: 94, Duration: 4})

		assert.ErrorIs(t, err, slot.ErrInvalidInput)
	})
}

func TestResolver_CheckRecurring(t *testing.T) {
	t.Run("should reject overlap with another member's reservation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenMembership(t, 1, memberId, 2, 50, 4)

		result, err := resolver.CheckRecurring(ctx, RecurringRequest{InstructorId: instructorId, OwnerId: otherId, DayOfWeek: 2, Start: 52, Duration: 4, From: monday})

		require.NoError(t, err)
		assert.Equal(t, ReservedForMember, result.Reason)
	})

	t.Run("should exclude the reservation being updated", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		rb := givenMembership(t, 1, memberId, 2, 50, 4)

		result, err := resolver.CheckRecurring(ctx, RecurringRequest{
			InstructorId: instructorId, OwnerId: memberId, DayOfWeek: 2, Start: 52, Duration: 4, ExcludeId: rb.Id, From: monday,
		})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should reject upcoming bookings of other students on that weekday", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		b := givenBooking(t, otherId, tuesday.AddDate(0, 0, 7), 50, 2, booking.StatusBooked)
		givenBooking(t, memberId, tuesday, 50, 4, booking.StatusBooked)
		givenBooking(t, otherId, monday, 50, 4, booking.StatusBooked)

		result, err := resolver.CheckRecurring(ctx, RecurringRequest{InstructorId: instructorId, OwnerId: memberId, DayOfWeek: 2, Start: 50, Duration: 4, From: monday})

		require.NoError(t, err)
		assert.Equal(t, SlotTaken, result.Reason)
		assert.Equal(t, b.Id, result.BookingId)
	})

	t.Run("should ignore past bookings", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		givenBooking(t, otherId, tuesday.AddDate(0, 0, -7), 50, 4, booking.StatusBooked)

		result, err := resolver.CheckRecurring(ctx, RecurringRequest{InstructorId: instructorId, OwnerId: memberId, DayOfWeek: 2, Start: 50, Duration: 4, From: monday})

		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("should reject a weekday without availability", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		result, err := resolver.CheckRecurring(ctx, RecurringRequest{InstructorId: instructorId, OwnerId: memberId, DayOfWeek: 3, Start: 50, Duration: 4, From: monday})

		require.NoError(t, err)
		assert.Equal(t, OutsideAvailability, result.Reason)
	})

	t.Run("should reject an out of range weekday", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := resolver.CheckRecurring(ctx, RecurringRequest{InstructorId: instructorId, OwnerId: memberId, DayOfWeek: 9, Start: 50, Duration: 4})

		assert.ErrorIs(t, err, slot.ErrInvalidInput)
	})
}
