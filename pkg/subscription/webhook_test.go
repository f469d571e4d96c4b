package subscription

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/tutorhub/tutorhub/internal/event_bus"
)

const webhookSecret = "whsec_test"

func signedRequest(t *testing.T, eventType string, object map[string]any) *http.Request {
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestWebhookHandler(t *testing.T) {
	t.Run("should apply an updated subscription", func(t *testing.T) {
		// given
		f := newFixture(t)
		sub := f.createMembership(t, "sub_1")
		handler := NewWebhookHandler(f.service, f.repo, webhookSecret, 0)
		req := signedRequest(t, "customer.subscription.updated", map[string]any{
			"id":                   "sub_1",
			"object":               "subscription",
			"status":               "active",
			"cancel_at_period_end": true,
			"current_period_start": sub.CurrentPeriodStart.Unix(),
			"current_period_end":   sub.CurrentPeriodEnd.Unix(),
		})
		rr := httptest.NewRecorder()

		// when
		handler.Handle(rr, req)

		// then
		assert.Equal(t, http.StatusOK, rr.Code)
		stored, err := f.repo.Get(ctx, sub.Id)
		require.NoError(t, err)
		assert.True(t, stored.CancelAtPeriodEnd)
		assert.Equal(t, StatusActive, stored.Status)
		assert.Equal(t, []event_bus.EventType{event_bus.SubscriptionNonRenewingType}, f.events)
	})

	t.Run("should cancel on a deleted subscription", func(t *testing.T) {
		f := newFixture(t)
		sub := f.createMembership(t, "sub_1")
		handler := NewWebhookHandler(f.service, f.repo, webhookSecret, 0)
		req := signedRequest(t, "customer.subscription.deleted", map[string]any{
			"id":     "sub_1",
			"object": "subscription",
			"status": "canceled",
		})
		rr := httptest.NewRecorder()

		handler.Handle(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		stored, err := f.repo.Get(ctx, sub.Id)
		require.NoError(t, err)
		assert.Equal(t, StatusCanceled, stored.Status)
		assert.Equal(t, sub.CurrentPeriodEnd, stored.CurrentPeriodEnd)
	})

	t.Run("should ignore unknown subscriptions", func(t *testing.T) {
		f := newFixture(t)
		handler := NewWebhookHandler(f.service, f.repo, webhookSecret, 0)
		req := signedRequest(t, "customer.subscription.deleted", map[string]any{
			"id":     "sub_unknown",
			"object": "subscription",
			"status": "canceled",
		})
		rr := httptest.NewRecorder()

		handler.Handle(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "ignored")
	})

	t.Run("should reject a bad signature", func(t *testing.T) {
		f := newFixture(t)
		handler := NewWebhookHandler(f.service, f.repo, "whsec_other", 0)
		req := signedRequest(t, "customer.subscription.updated", map[string]any{"id": "sub_1", "object": "subscription"})
		rr := httptest.NewRecorder()

		handler.Handle(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
