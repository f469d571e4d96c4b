package event_bus

import "time"

const (
	BookingCreatedType   EventType = "booking.created"
	BookingCancelledType EventType = "booking.cancelled"

	SubscriptionCanceledType    EventType = "subscription.canceled"
	SubscriptionExpiredType     EventType = "subscription.expired"
	SubscriptionNonRenewingType EventType = "subscription.non_renewing"
	// SubscriptionLapsedType covers an active subscription falling out of good standing
	// without being canceled, e.g. a failed renewal payment.
	SubscriptionLapsedType EventType = "subscription.lapsed"

	// InstructorCalendarChangedType is published whenever data feeding an instructor's
	// external busy blocks changes (availability, calendar settings, credentials).
	InstructorCalendarChangedType EventType = "instructor.calendar_changed"
)

type BookingCreated struct {
	BookingId    int
	InstructorId int
	StudentId    int
	StartTime    time.Time
	EndTime      time.Time
}

type BookingCancelled struct {
	BookingId    int
	InstructorId int
	StudentId    int
	// CancelledBy is the id of the user who cancelled the booking.
	CancelledBy int
}

type SubscriptionStatusChanged struct {
	SubscriptionId int
	UserId         int
	OldStatus      string
	NewStatus      string
	// Reason is a short machine readable cause, e.g. "provider_webhook" or "provider_divergence".
	Reason string
}

type InstructorCalendarChanged struct {
	InstructorId int
}
