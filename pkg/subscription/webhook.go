package subscription

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/tutorhub/tutorhub/internal/rest"
)

// WebhookHandler receives Stripe subscription events. The signature is the only authentication.
type WebhookHandler struct {
	service   Service
	repo      Repository
	secret    string
	tolerance time.Duration
}

func NewWebhookHandler(service Service, repo Repository, secret string, tolerance time.Duration) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{service: service, repo: repo, secret: secret, tolerance: tolerance}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		rest.WriteError(w, http.StatusServiceUnavailable, "Stripe webhook not configured", "")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		rest.WriteError(w, http.StatusBadRequest, "Missing Stripe-Signature header", "")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Failed to read request body", "")
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		log.Warnf("stripe webhook rejected: %v", err)
		rest.WriteError(w, http.StatusBadRequest, "Invalid signature", "")
		return
	}
	log.Infof("stripe event %s received: %s", evt.ID, evt.Type)

	switch string(evt.Type) {
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			log.Errorf("stripe: invalid subscription payload: %v", err)
			rest.WriteError(w, http.StatusBadRequest, "Invalid subscription payload", "")
			return
		}
		local, err := h.repo.GetByProviderId(r.Context(), sub.ID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			log.Infof("stripe: no local subscription for %s, ignoring", sub.ID)
			rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if err != nil {
			rest.WriteError(w, http.StatusInternalServerError, "Failed to load subscription", "")
			return
		}
		state := stateFromStripe(&sub)
		if string(evt.Type) == "customer.subscription.deleted" {
			state.Status = StatusCanceled
			if local.CancelAtPeriodEnd {
				state.Status = StatusExpired
			}
		}
		if _, err := h.service.Apply(r.Context(), local, state, ReasonProviderWebhook); err != nil {
			log.Errorf("stripe: failed to apply state to subscription %d: %v", local.Id, err)
			rest.WriteError(w, http.StatusInternalServerError, "Failed to apply subscription state", "")
			return
		}
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
