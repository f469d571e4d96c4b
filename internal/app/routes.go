package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Users
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")

	// Availability
	r.HandleFunc("/api/instructors/{id}/availability", deps.AvailabilityHandler.GetWeekly).Methods("GET")
	r.HandleFunc("/api/instructors/{id}/availability", deps.AvailabilityHandler.SetWeekly).Methods("PUT")
	r.HandleFunc("/api/instructors/{id}/blocked", deps.AvailabilityHandler.ListBlocked).Methods("GET")
	r.HandleFunc("/api/instructors/{id}/blocked", deps.AvailabilityHandler.AddBlocked).Methods("POST")
	r.HandleFunc("/api/instructors/{id}/blocked/{bid}", deps.AvailabilityHandler.RemoveBlocked).Methods("DELETE")

	// Bookings
	r.HandleFunc("/api/instructors/{id}/events", deps.SchedulingHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/bookings", deps.SchedulingHandler.RequestBooking).Methods("POST")
	r.HandleFunc("/api/bookings/{id}", deps.SchedulingHandler.RescheduleBooking).Methods("PUT")
	r.HandleFunc("/api/bookings/{id}", deps.SchedulingHandler.CancelBooking).Methods("DELETE")
	r.HandleFunc("/api/bookings/{id}/completion", deps.SchedulingHandler.MarkCompleted).Methods("POST")

	// Subscriptions
	r.HandleFunc("/api/subscriptions/{id}/recurring/eligibility", deps.SchedulingHandler.CheckEligibility).Methods("GET")
	r.HandleFunc("/api/subscriptions/{id}/recurring", deps.SchedulingHandler.CreateRecurring).Methods("POST")
	r.HandleFunc("/api/subscriptions/{id}/recurring", deps.SchedulingHandler.UpdateRecurring).Methods("PUT")
	r.HandleFunc("/api/subscriptions/{id}/recurring", deps.SchedulingHandler.DeleteRecurring).Methods("DELETE")
	r.HandleFunc("/api/subscriptions/{id}/cancellation", deps.SchedulingHandler.PreviewCancellation).Methods("GET")
	r.HandleFunc("/api/subscriptions/{id}/cancellation", deps.SchedulingHandler.CancelSubscription).Methods("POST")
	r.HandleFunc("/api/webhooks/stripe", deps.StripeWebhook.Handle).Methods("POST")

	// Credits
	r.HandleFunc("/api/credits", deps.CreditsHandler.GetBalance).Methods("GET")
	r.HandleFunc("/api/users/{id}/credits", deps.CreditsHandler.Adjust).Methods("POST")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/integrations/google/settings", deps.GoogleHandler.GetSettings).Methods("GET")
	r.HandleFunc("/api/integrations/google/settings", deps.GoogleHandler.UpdateSettings).Methods("PUT")
}
