package subscription

import (
	"context"
	"errors"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

// PaymentProvider is the upstream source of truth for paid subscriptions.
type PaymentProvider interface {
	Get(ctx context.Context, providerSubscriptionId string) (State, error)
	// Cancel ends the subscription immediately. Repeating a call with the same idempotency key is safe.
	Cancel(ctx context.Context, providerSubscriptionId string, idempotencyKey string) (State, error)
}
