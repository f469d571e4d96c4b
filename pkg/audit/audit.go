// Package audit keeps an append-only trail of state changes that were not initiated by a user request.
package audit

import "time"

const (
	KindProviderDivergence = "subscription.provider_divergence"
	KindSubscriptionStatus = "subscription.status_changed"
	KindRecurringReserved  = "recurring.reserved"
	KindRecurringUpdated   = "recurring.updated"
	KindRecurringReleased  = "recurring.released"
	KindCreditsAwarded     = "credits.awarded"
)

const (
	SubjectSubscription = "subscription"
	SubjectRecurring    = "recurring_booking"
	SubjectUser         = "user"
)

type Event struct {
	Id          int
	Kind        string
	SubjectType string
	SubjectId   int
	Payload     map[string]any
	CreatedAt   time.Time
}
