package subscription

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

type StripeProvider struct{}

func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{}
}

func (p *StripeProvider) Get(ctx context.Context, providerSubscriptionId string) (State, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := stripesubscription.Get(providerSubscriptionId, params)
	if err != nil {
		return State{}, err
	}
	return stateFromStripe(sub), nil
}

func (p *StripeProvider) Cancel(ctx context.Context, providerSubscriptionId string, idempotencyKey string) (State, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	sub, err := stripesubscription.Cancel(providerSubscriptionId, params)
	if err != nil {
		return State{}, err
	}
	return stateFromStripe(sub), nil
}

func stateFromStripe(sub *stripe.Subscription) State {
	state := State{
		Status:            statusFromStripe(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		state.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		state.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return state
}

func statusFromStripe(status stripe.SubscriptionStatus) Status {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return StatusActive
	case stripe.SubscriptionStatusCanceled:
		return StatusCanceled
	case stripe.SubscriptionStatusIncompleteExpired:
		return StatusExpired
	default:
		return StatusPastDue
	}
}
