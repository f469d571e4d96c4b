package subscription

import "time"

type IneligibleReason string

const (
	ReasonNotAMembership IneligibleReason = "not_a_membership"
	ReasonPeriodEnded    IneligibleReason = "period_already_ended"
	ReasonNotEligible    IneligibleReason = "not_eligible"
)

const day = 24 * time.Hour

type Breakdown struct {
	RemainingDays int
	TotalDays     int
	PriceCents    int64
	RateCents     int64
}

// Proration is the credit compensation for cancelling before the period ends.
type Proration struct {
	Eligible  bool
	Reason    IneligibleReason
	Credits   int
	Breakdown Breakdown
}

// Calculate returns the credits owed for the unused part of the current period:
// floor(price * remaining_days / total_days / rate), with partial days counted as whole days.
func Calculate(sub Subscription, now time.Time, rateCents int64) Proration {
	if !sub.IsMembership() {
		return Proration{Reason: ReasonNotAMembership}
	}
	if !sub.IsActive() {
		return Proration{Reason: ReasonNotEligible}
	}
	if !now.Before(sub.CurrentPeriodEnd) {
		return Proration{Reason: ReasonPeriodEnded}
	}
	total := ceilDays(sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart))
	if total <= 0 || rateCents <= 0 {
		return Proration{Reason: ReasonNotEligible}
	}
	remaining := ceilDays(sub.CurrentPeriodEnd.Sub(now))
	if remaining > total {
		remaining = total
	}

	credits := sub.Plan.PriceCents * int64(remaining) / (int64(total) * rateCents)
	if credits < 0 {
		credits = 0
	}
	return Proration{
		Eligible: true,
		Credits:  int(credits),
		Breakdown: Breakdown{
			RemainingDays: remaining,
			TotalDays:     total,
			PriceCents:    sub.Plan.PriceCents,
			RateCents:     rateCents,
		},
	}
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + day - 1) / day)
}
