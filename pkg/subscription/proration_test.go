package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func membership(start time.Time, days int, priceCents int64) Subscription {
	return Subscription{
		Id:                 1,
		UserId:             7,
		Plan:               Plan{Id: 1, Name: "Monthly", Type: PlanMembership, PriceCents: priceCents, PeriodDays: days},
		Status:             StatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 0, days),
	}
}

func TestCalculate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should prorate remaining days of a membership", func(t *testing.T) {
		// given $100 for 30 days, cancelled 10 days in
		sub := membership(start, 30, 10000)

		// when
		result := Calculate(sub, start.AddDate(0, 0, 10), 100)

		// then
		assert.True(t, result.Eligible)
		assert.Equal(t, 66, result.Credits)
		assert.Equal(t, Breakdown{RemainingDays: 20, TotalDays: 30, PriceCents: 10000, RateCents: 100}, result.Breakdown)
	})

	t.Run("should count a partial day as a whole day", func(t *testing.T) {
		sub := membership(start, 30, 10000)

		result := Calculate(sub, start.AddDate(0, 0, 10).Add(time.Hour), 100)

		assert.Equal(t, 20, result.Breakdown.RemainingDays)
		assert.Equal(t, 66, result.Credits)
	})

	t.Run("should refuse packs", func(t *testing.T) {
		sub := membership(start, 30, 10000)
		sub.Plan.Type = PlanPack

		result := Calculate(sub, start, 100)

		assert.False(t, result.Eligible)
		assert.Equal(t, ReasonNotAMembership, result.Reason)
		assert.Zero(t, result.Credits)
	})

	t.Run("should refuse an ended period", func(t *testing.T) {
		sub := membership(start, 30, 10000)

		result := Calculate(sub, sub.CurrentPeriodEnd, 100)

		assert.False(t, result.Eligible)
		assert.Equal(t, ReasonPeriodEnded, result.Reason)
	})

	t.Run("should refuse inactive subscriptions and bad rates", func(t *testing.T) {
		sub := membership(start, 30, 10000)
		sub.Status = StatusPastDue
		assert.Equal(t, ReasonNotEligible, Calculate(sub, start, 100).Reason)

		sub.Status = StatusActive
		assert.Equal(t, ReasonNotEligible, Calculate(sub, start, 0).Reason)
	})

	t.Run("should never exceed the full price", func(t *testing.T) {
		sub := membership(start, 30, 10000)

		result := Calculate(sub, start.AddDate(0, 0, -3), 100)

		assert.Equal(t, 100, result.Credits)
	})
}
