// Package credits keeps each user's lesson credit balance and its ledger.
package credits

import (
	"errors"
	"time"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

const (
	ReasonBooking          = "booking"
	ReasonBookingRefund    = "booking_refund"
	ReasonProration        = "cancellation_proration"
	ReasonManualAdjustment = "manual_adjustment"
)

type Transaction struct {
	Id     int
	UserId int
	// Delta is positive for awards and refunds, negative for debits.
	Delta          int
	Reason         string
	BookingId      int
	SubscriptionId int
	CreatedAt      time.Time
}

// CostOf returns the credits charged for a lesson: one per started 30 minutes.
func CostOf(durationSlots int) int {
	if durationSlots <= 0 {
		return 0
	}
	return (durationSlots + 1) / 2
}
