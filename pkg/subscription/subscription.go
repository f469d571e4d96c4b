package subscription

import "time"

type PlanType string

const (
	PlanMembership PlanType = "membership"
	PlanPack       PlanType = "pack"
)

type Plan struct {
	Id         int
	Name       string
	Type       PlanType
	PriceCents int64
	PeriodDays int
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

type Subscription struct {
	Id                 int
	UserId             int
	PlanId             int
	Plan               Plan
	Status             Status
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	// ProviderSubscriptionId is the payment provider's id; empty for locally managed subscriptions.
	ProviderSubscriptionId string
}

func (s Subscription) IsMembership() bool {
	return s.Plan.Type == PlanMembership
}

func (s Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// State is the mutable part of a subscription that the payment provider is authoritative for.
type State struct {
	Status            Status
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

func (s Subscription) State() State {
	return State{
		Status:            s.Status,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		PeriodStart:       s.CurrentPeriodStart,
		PeriodEnd:         s.CurrentPeriodEnd,
	}
}

func (s State) Equal(other State) bool {
	return s.Status == other.Status &&
		s.CancelAtPeriodEnd == other.CancelAtPeriodEnd &&
		s.PeriodStart.Equal(other.PeriodStart) &&
		s.PeriodEnd.Equal(other.PeriodEnd)
}

// merged fills zero periods from the current state; providers do not always report them.
func (s State) merged(current State) State {
	if s.PeriodStart.IsZero() {
		s.PeriodStart = current.PeriodStart
	}
	if s.PeriodEnd.IsZero() {
		s.PeriodEnd = current.PeriodEnd
	}
	return s
}
