package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingDecisions counts booking requests by outcome ("booked" or a rejection reason).
	BookingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutorhub",
		Name:      "booking_decisions_total",
		Help:      "Booking requests by outcome.",
	}, []string{"outcome"})

	// ExternalCalendarFetches counts upstream calendar fetches by result
	// (ok, cache_hit, not_connected, stale_fallback, empty_fallback).
	ExternalCalendarFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutorhub",
		Name:      "external_calendar_fetches_total",
		Help:      "External calendar lookups by result.",
	}, []string{"result"})

	// ProviderDivergences counts subscriptions whose local state was healed from the payment provider.
	ProviderDivergences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tutorhub",
		Name:      "subscription_provider_divergences_total",
		Help:      "Subscriptions synced from the payment provider after a divergence.",
	})
)
