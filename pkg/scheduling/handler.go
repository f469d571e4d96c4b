package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/rest"
	"github.com/tutorhub/tutorhub/pkg/access"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/conflict"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/subscription"
	"github.com/tutorhub/tutorhub/pkg/user"
)

type BookingRequestDTO struct {
	InstructorId  int       `json:"instructorId"`
	StudentId     int       `json:"studentId"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	PaymentMethod string    `json:"paymentMethod"`
}

type RescheduleDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type BookingDTO struct {
	Id             string    `json:"id"`
	InstructorId   int       `json:"instructorId"`
	StudentId      int       `json:"studentId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         string    `json:"status"`
	PaymentMethod  string    `json:"paymentMethod"`
	Source         string    `json:"source"`
	CreditsCharged int       `json:"creditsCharged"`
}

// RejectionDTO is returned with 409 when a booking or reservation is refused by a business rule.
type RejectionDTO struct {
	Error       string `json:"error"`
	Reason      string `json:"reason"`
	BookingId   int    `json:"bookingId,omitempty"`
	RecurringId int    `json:"recurringId,omitempty"`
}

type CalendarEventDTO struct {
	Id           string    `json:"id"`
	Source       string    `json:"source"`
	InstructorId int       `json:"instructorId"`
	StudentId    int       `json:"studentId,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	Summary      string    `json:"summary,omitempty"`
}

type EligibilityDTO struct {
	Eligible                    bool   `json:"eligible"`
	Reason                      string `json:"reason,omitempty"`
	HasExistingRecurringBooking bool   `json:"hasExistingRecurringBooking"`
}

type RecurringDTO struct {
	Id             int `json:"id,omitempty"`
	SubscriptionId int `json:"subscriptionId"`
	InstructorId   int `json:"instructorId"`
	DayOfWeek      int `json:"dayOfWeek"`
	StartSlot      int `json:"startSlot"`
	Duration       int `json:"duration"`
}

type RecurringPatchDTO struct {
	DayOfWeek *int `json:"dayOfWeek"`
	StartSlot *int `json:"startSlot"`
	Duration  *int `json:"duration"`
}

type ProrationDTO struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	Credits       int    `json:"credits"`
	RemainingDays int    `json:"remainingDays"`
	TotalDays     int    `json:"totalDays"`
	PriceCents    int64  `json:"priceCents"`
	RateCents     int64  `json:"rateCents"`
}

type CancellationPreviewDTO struct {
	CreditsToBeAwarded       int          `json:"creditsToBeAwarded"`
	CreditsAfterCancellation int          `json:"creditsAfterCancellation"`
	HasRecurringBooking      bool         `json:"hasRecurringBooking"`
	Proration                ProrationDTO `json:"proration"`
}

type CancellationDTO struct {
	SubscriptionId    int          `json:"subscriptionId"`
	Status            string       `json:"status"`
	CreditsAwarded    int          `json:"creditsAwarded"`
	Balance           int          `json:"balance"`
	RecurringReleased bool         `json:"recurringReleased"`
	Proration         ProrationDTO `json:"proration"`
}

type Handler struct {
	service   Service
	recurring *RecurringManager
}

func NewHandler(service Service, recurring *RecurringManager) *Handler {
	return &Handler{service: service, recurring: recurring}
}

// writeError maps service errors to HTTP statuses. Anything unknown is a 500 with the fallback message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		rest.WriteError(w, http.StatusForbidden, "Not allowed", "")
	case errors.Is(err, access.ErrTooLate):
		rest.WriteError(w, http.StatusForbidden, "Too late to change this booking", err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, conflict.ErrInvalidRef):
		rest.WriteError(w, http.StatusBadRequest, "Invalid input", err.Error())
	case errors.Is(err, conflict.ErrVirtualOccurrence):
		rest.WriteError(w, http.StatusBadRequest, "Recurring occurrences cannot be changed individually", "")
	case errors.Is(err, booking.ErrBookingNotFound):
		rest.WriteError(w, http.StatusNotFound, "Booking not found", "")
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		rest.WriteError(w, http.StatusNotFound, "Subscription not found", "")
	case errors.Is(err, recurring.ErrNotFound):
		rest.WriteError(w, http.StatusNotFound, "Recurring booking not found", "")
	case errors.Is(err, ErrBookingNotActive), errors.Is(err, ErrSubscriptionEnded), errors.Is(err, ErrNotEligible):
		rest.WriteError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, subscription.ErrProviderUnavailable):
		rest.WriteError(w, http.StatusBadGateway, "Payment provider unavailable", "")
	default:
		log.Errorf("%s: %v", fallback, err)
		rest.WriteError(w, http.StatusInternalServerError, fallback, "")
	}
}

func writeRejection(w http.ResponseWriter, reason conflict.Reason, c conflict.Result) {
	rest.WriteJSON(w, http.StatusConflict, RejectionDTO{
		Error:       "Rejected",
		Reason:      string(reason),
		BookingId:   c.BookingId,
		RecurringId: c.RecurringId,
	})
}

func currentUser(w http.ResponseWriter, r *http.Request) (user.User, bool) {
	u, err := user.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return user.User{}, false
	}
	return u, true
}

// RequestBooking godoc
// @Summary Book a lesson
// @Description Returns 409 with reason OUTSIDE_AVAILABILITY, SLOT_TAKEN, RESERVED_FOR_MEMBER or INSUFFICIENT_CREDITS when refused
// @Tags Bookings
// @Accept json
// @Produce json
// @Param booking body BookingRequestDTO true "Lesson to book"
// @Success 201 {object} BookingDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid input"
// @Failure 409 {object} RejectionDTO "Rejected"
// @Router /api/bookings [post]
// @Security XUserId
func (h *Handler) RequestBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body BookingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	if body.StudentId == 0 {
		body.StudentId = actor.Id
	}
	result, err := h.service.RequestBooking(r.Context(), actor, BookingRequest{
		InstructorId:  body.InstructorId,
		StudentId:     body.StudentId,
		Start:         body.Start,
		End:           body.End,
		PaymentMethod: booking.PaymentMethod(body.PaymentMethod),
	})
	if err != nil {
		writeError(w, err, "Failed to book lesson")
		return
	}
	if result.Rejected() {
		writeRejection(w, result.Reason, result.Conflict)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toBookingDTO(result.Booking))
}

// CancelBooking godoc
// @Summary Cancel a booking
// @Description Students must cancel outside the cancellation window; credits are refunded
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} BookingDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid or virtual booking id"
// @Failure 403 {object} rest.ErrorResponse "Not allowed or too late"
// @Router /api/bookings/{id} [delete]
// @Security XUserId
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	cancelled, err := h.service.CancelBooking(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Failed to cancel booking")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toBookingDTO(cancelled))
}

// RescheduleBooking godoc
// @Summary Move a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param range body RescheduleDTO true "New start and end"
// @Success 200 {object} BookingDTO
// @Failure 409 {object} RejectionDTO "Rejected"
// @Router /api/bookings/{id} [put]
// @Security XUserId
func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body RescheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	result, err := h.service.RescheduleBooking(r.Context(), actor, mux.Vars(r)["id"], body.Start, body.End)
	if err != nil {
		writeError(w, err, "Failed to reschedule booking")
		return
	}
	if result.Rejected() {
		writeRejection(w, result.Reason, result.Conflict)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toBookingDTO(result.Booking))
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	completed, err := h.service.MarkCompleted(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Failed to complete booking")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toBookingDTO(completed))
}

// GetEvents godoc
// @Summary Get the instructor calendar
// @Description Bookings, recurring occurrences and external busy blocks, ordered by start
// @Tags Bookings
// @Produce json
// @Param id path int true "Instructor ID"
// @Param from query string true "Start (RFC3339)"
// @Param to query string true "End (RFC3339)"
// @Success 200 {array} CalendarEventDTO
// @Router /api/instructors/{id}/events [get]
// @Security XUserId
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	instructorId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid instructor id", "")
		return
	}
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "from and to must be in RFC3339 format")
		return
	}
	events, err := h.service.GetEvents(r.Context(), instructorId, from, to)
	if err != nil {
		writeError(w, err, "Failed to get events")
		return
	}
	dtos := make([]CalendarEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, CalendarEventDTO{
			Id:           e.Id,
			Source:       string(e.Source),
			InstructorId: e.InstructorId,
			StudentId:    e.StudentId,
			Start:        e.Start,
			End:          e.End,
			Status:       e.Status,
			Summary:      e.Summary,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// CheckEligibility godoc
// @Summary Check whether a subscription can hold a recurring booking
// @Tags Recurring
// @Produce json
// @Param id path int true "Subscription ID"
// @Success 200 {object} EligibilityDTO
// @Router /api/subscriptions/{id}/recurring/eligibility [get]
// @Security XUserId
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	e, err := h.recurring.CheckEligibility(r.Context(), actor, subscriptionId)
	if err != nil {
		writeError(w, err, "Failed to check eligibility")
		return
	}
	rest.WriteJSON(w, http.StatusOK, EligibilityDTO{
		Eligible:                    e.Eligible,
		Reason:                      e.Reason,
		HasExistingRecurringBooking: e.HasExistingRecurringBooking,
	})
}

// CreateRecurring godoc
// @Summary Reserve a weekly slot for a membership
// @Tags Recurring
// @Accept json
// @Produce json
// @Param id path int true "Subscription ID"
// @Param recurring body RecurringDTO true "Weekly slot in UTC"
// @Success 201 {object} RecurringDTO
// @Failure 409 {object} RejectionDTO "Rejected"
// @Router /api/subscriptions/{id}/recurring [post]
// @Security XUserId
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	var body RecurringDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	result, err := h.recurring.Create(r.Context(), actor, RecurringRequest{
		SubscriptionId: subscriptionId,
		InstructorId:   body.InstructorId,
		DayOfWeek:      body.DayOfWeek,
		StartSlot:      body.StartSlot,
		Duration:       body.Duration,
	})
	if err != nil {
		writeError(w, err, "Failed to reserve recurring booking")
		return
	}
	if result.Rejected() {
		writeRejection(w, result.Reason, result.Conflict)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toRecurringDTO(result.Recurring))
}

// UpdateRecurring godoc
// @Summary Move a recurring booking
// @Tags Recurring
// @Accept json
// @Produce json
// @Param id path int true "Subscription ID"
// @Param patch body RecurringPatchDTO true "Fields to change"
// @Success 200 {object} RecurringDTO
// @Failure 409 {object} RejectionDTO "Rejected"
// @Router /api/subscriptions/{id}/recurring [put]
// @Security XUserId
func (h *Handler) UpdateRecurring(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	var body RecurringPatchDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	result, err := h.recurring.Update(r.Context(), actor, subscriptionId, RecurringPatch(body))
	if err != nil {
		writeError(w, err, "Failed to update recurring booking")
		return
	}
	if result.Rejected() {
		writeRejection(w, result.Reason, result.Conflict)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toRecurringDTO(result.Recurring))
}

func (h *Handler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	if err := h.recurring.Delete(r.Context(), actor, subscriptionId); err != nil {
		writeError(w, err, "Failed to delete recurring booking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewCancellation godoc
// @Summary Preview the credits awarded on cancellation
// @Description Read-only
// @Tags Subscriptions
// @Produce json
// @Param id path int true "Subscription ID"
// @Success 200 {object} CancellationPreviewDTO
// @Router /api/subscriptions/{id}/cancellation [get]
// @Security XUserId
func (h *Handler) PreviewCancellation(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	preview, err := h.service.PreviewCancellation(r.Context(), actor, subscriptionId)
	if err != nil {
		writeError(w, err, "Failed to preview cancellation")
		return
	}
	rest.WriteJSON(w, http.StatusOK, CancellationPreviewDTO{
		CreditsToBeAwarded:       preview.CreditsToBeAwarded,
		CreditsAfterCancellation: preview.CreditsAfterCancellation,
		HasRecurringBooking:      preview.HasRecurringBooking,
		Proration:                toProrationDTO(preview.Proration),
	})
}

// CancelSubscription godoc
// @Summary Cancel a subscription
// @Description Cancels at the payment provider, awards prorated credits and releases the recurring booking
// @Tags Subscriptions
// @Produce json
// @Param id path int true "Subscription ID"
// @Success 200 {object} CancellationDTO
// @Failure 409 {object} rest.ErrorResponse "Subscription already ended"
// @Failure 502 {object} rest.ErrorResponse "Payment provider unavailable"
// @Router /api/subscriptions/{id}/cancellation [post]
// @Security XUserId
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	subscriptionId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid subscription id", "")
		return
	}
	result, err := h.service.CancelSubscription(r.Context(), actor, subscriptionId)
	if err != nil {
		writeError(w, err, "Failed to cancel subscription")
		return
	}
	rest.WriteJSON(w, http.StatusOK, CancellationDTO{
		SubscriptionId:    result.Subscription.Id,
		Status:            string(result.Subscription.Status),
		CreditsAwarded:    result.CreditsAwarded,
		Balance:           result.Balance,
		RecurringReleased: result.RecurringReleased,
		Proration:         toProrationDTO(result.Proration),
	})
}

func toBookingDTO(b booking.Booking) BookingDTO {
	return BookingDTO{
		Id:             conflict.PersistedBooking{Id: b.Id}.String(),
		InstructorId:   b.InstructorId,
		StudentId:      b.StudentId,
		Start:          b.StartTime(),
		End:            b.EndTime(),
		Status:         string(b.Status),
		PaymentMethod:  string(b.PaymentMethod),
		Source:         string(b.Source),
		CreditsCharged: b.CreditsCharged,
	}
}

func toRecurringDTO(rb recurring.RecurringBooking) RecurringDTO {
	return RecurringDTO{
		Id:             rb.Id,
		SubscriptionId: rb.SubscriptionId,
		InstructorId:   rb.InstructorId,
		DayOfWeek:      rb.DayOfWeek,
		StartSlot:      rb.StartSlot,
		Duration:       rb.Duration,
	}
}

func toProrationDTO(p subscription.Proration) ProrationDTO {
	return ProrationDTO{
		Eligible:      p.Eligible,
		Reason:        string(p.Reason),
		Credits:       p.Credits,
		RemainingDays: p.Breakdown.RemainingDays,
		TotalDays:     p.Breakdown.TotalDays,
		PriceCents:    p.Breakdown.PriceCents,
		RateCents:     p.Breakdown.RateCents,
	}
}
