// Package scheduling books lessons, keeps standing reservations and cancels subscriptions
// on top of the availability, conflict and credit packages.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/metrics"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/access"
	"github.com/tutorhub/tutorhub/pkg/audit"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/conflict"
	"github.com/tutorhub/tutorhub/pkg/credits"
	"github.com/tutorhub/tutorhub/pkg/google"
	"github.com/tutorhub/tutorhub/pkg/slot"
	"github.com/tutorhub/tutorhub/pkg/subscription"
	"github.com/tutorhub/tutorhub/pkg/user"
)

var (
	ErrInvalidInput        = slot.ErrInvalidInput
	ErrBookingNotActive    = errors.New("booking is not active")
	ErrSubscriptionEnded   = errors.New("subscription is no longer active")
	errInsufficientCredits = errors.New("rollback: insufficient credits")
)

// InsufficientCredits rejects a credit-paid booking the student cannot afford.
const InsufficientCredits conflict.Reason = "INSUFFICIENT_CREDITS"

type ExternalCalendar interface {
	GetEvents(ctx context.Context, instructorId int, from time.Time, to time.Time) []google.Block
}

type Config struct {
	// GranularitySlots is the multiple every requested duration must be of.
	GranularitySlots int
	CreditRateCents  int64
}

type BookingRequest struct {
	InstructorId  int
	StudentId     int
	Start         time.Time
	End           time.Time
	PaymentMethod booking.PaymentMethod
}

// BookingResult carries either the stored booking or the reason it was refused.
type BookingResult struct {
	Booking  booking.Booking
	Reason   conflict.Reason
	Conflict conflict.Result
}

func (r BookingResult) Rejected() bool {
	return r.Reason != ""
}

type EventSource string

const (
	SourceBooking   EventSource = "booking"
	SourceRecurring EventSource = "recurring"
	SourceExternal  EventSource = "external"
)

// CalendarEvent is one entry of the merged instructor calendar.
type CalendarEvent struct {
	Id           string
	Source       EventSource
	InstructorId int
	StudentId    int
	Start        time.Time
	End          time.Time
	Status       string
	Summary      string
}

type CancellationPreview struct {
	Proration                subscription.Proration
	CreditsToBeAwarded       int
	CreditsAfterCancellation int
	HasRecurringBooking      bool
}

type CancellationResult struct {
	Subscription      subscription.Subscription
	Proration         subscription.Proration
	CreditsAwarded    int
	Balance           int
	RecurringReleased bool
}

type Service interface {
	RequestBooking(ctx context.Context, actor user.User, req BookingRequest) (BookingResult, error)
	CancelBooking(ctx context.Context, actor user.User, ref string) (booking.Booking, error)
	RescheduleBooking(ctx context.Context, actor user.User, ref string, start time.Time, end time.Time) (BookingResult, error)
	MarkCompleted(ctx context.Context, actor user.User, ref string) (booking.Booking, error)
	GetEvents(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]CalendarEvent, error)
	PreviewCancellation(ctx context.Context, actor user.User, subscriptionId int) (CancellationPreview, error)
	CancelSubscription(ctx context.Context, actor user.User, subscriptionId int) (CancellationResult, error)
}

type ServiceImpl struct {
	store         Store
	availability  conflict.Availability
	calendar      ExternalCalendar
	subscriptions subscription.Service
	recurring     *RecurringManager
	policy        *access.Policy
	eventBus      *event_bus.EventBus
	clock         utils.Clock
	cfg           Config
}

func NewService(
	store Store,
	availability conflict.Availability,
	calendar ExternalCalendar,
	subscriptions subscription.Service,
	recurring *RecurringManager,
	policy *access.Policy,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
	cfg Config,
) *ServiceImpl {
	if cfg.GranularitySlots <= 0 {
		cfg.GranularitySlots = 1
	}
	return &ServiceImpl{
		store:         store,
		availability:  availability,
		calendar:      calendar,
		subscriptions: subscriptions,
		recurring:     recurring,
		policy:        policy,
		eventBus:      eventBus,
		clock:         clock,
		cfg:           cfg,
	}
}

func (s *ServiceImpl) toRange(start time.Time, end time.Time) (time.Time, slot.Range, error) {
	date, r, err := slot.FromInstants(start, end)
	if err != nil {
		return time.Time{}, slot.Range{}, err
	}
	if r.Duration%s.cfg.GranularitySlots != 0 {
		return time.Time{}, slot.Range{}, fmt.Errorf("%w: duration must be a multiple of %s",
			ErrInvalidInput, time.Duration(s.cfg.GranularitySlots)*slot.Length)
	}
	return date, r, nil
}

func sourceOf(actor user.User) booking.Source {
	switch {
	case actor.IsAdmin():
		return booking.SourceAdmin
	case actor.IsInstructor():
		return booking.SourceInstructor
	default:
		return booking.SourceStudent
	}
}

func recordDecision(result BookingResult) {
	outcome := "booked"
	if result.Rejected() {
		outcome = string(result.Reason)
	}
	metrics.BookingDecisions.WithLabelValues(outcome).Inc()
}

func (s *ServiceImpl) RequestBooking(ctx context.Context, actor user.User, req BookingRequest) (BookingResult, error) {
	if !actor.IsAdmin() && !actor.Manages(req.InstructorId) && actor.Id != req.StudentId {
		return BookingResult{}, access.ErrForbidden
	}
	if req.StudentId <= 0 || req.InstructorId <= 0 {
		return BookingResult{}, fmt.Errorf("%w: instructor and student are required", ErrInvalidInput)
	}
	if req.StudentId == req.InstructorId {
		return BookingResult{}, fmt.Errorf("%w: instructors cannot book themselves", ErrInvalidInput)
	}
	if !req.PaymentMethod.Valid() {
		return BookingResult{}, fmt.Errorf("%w: payment method %q", ErrInvalidInput, req.PaymentMethod)
	}
	date, r, err := s.toRange(req.Start, req.End)
	if err != nil {
		return BookingResult{}, err
	}
	if !actor.IsAdmin() && !actor.Manages(req.InstructorId) && !req.Start.After(s.clock.Now()) {
		return BookingResult{}, fmt.Errorf("%w: booking must start in the future", ErrInvalidInput)
	}

	var result BookingResult
	keys := []string{bookingLockKey(req.InstructorId, date), recurringLockKey(req.InstructorId, slot.Weekday(date))}
	err = s.store.Locked(ctx, keys, func(repos Repos) error {
		resolver := conflict.NewResolver(s.availability, repos.Bookings, repos.Recurring)
		check, err := resolver.Check(ctx, conflict.Request{
			InstructorId: req.InstructorId,
			StudentId:    req.StudentId,
			Date:         date,
			Start:        r.Start,
			Duration:     r.Duration,
		})
		if err != nil {
			return err
		}
		if !check.Allowed() {
			result = BookingResult{Reason: check.Reason, Conflict: check}
			return nil
		}

		cost := 0
		if req.PaymentMethod == booking.PaymentCredits {
			cost = credits.CostOf(r.Duration)
		}
		created, err := repos.Bookings.Create(ctx, booking.Booking{
			InstructorId:   req.InstructorId,
			StudentId:      req.StudentId,
			Date:           date,
			StartSlot:      r.Start,
			Duration:       r.Duration,
			Status:         booking.StatusBooked,
			PaymentMethod:  req.PaymentMethod,
			Source:         sourceOf(actor),
			CreditsCharged: cost,
		})
		if err != nil {
			return err
		}
		if cost > 0 {
			_, err := repos.Credits.Apply(ctx, credits.Transaction{
				UserId:    req.StudentId,
				Delta:     -cost,
				Reason:    credits.ReasonBooking,
				BookingId: created.Id,
			})
			if errors.Is(err, credits.ErrInsufficientCredits) {
				return errInsufficientCredits
			}
			if err != nil {
				return err
			}
		}
		result = BookingResult{Booking: created}
		return nil
	})
	if errors.Is(err, errInsufficientCredits) {
		result = BookingResult{Reason: InsufficientCredits}
		err = nil
	}
	if err != nil {
		log.Errorf("failed to book instructor %d at %s: %v", req.InstructorId, req.Start, err)
		return BookingResult{}, err
	}
	recordDecision(result)
	if result.Rejected() {
		log.Debugf("booking for instructor %d at %s rejected: %s", req.InstructorId, req.Start, result.Reason)
		return result, nil
	}

	s.publish(ctx, event_bus.BookingCreatedType, event_bus.BookingCreated{
		BookingId:    result.Booking.Id,
		InstructorId: result.Booking.InstructorId,
		StudentId:    result.Booking.StudentId,
		StartTime:    result.Booking.StartTime(),
		EndTime:      result.Booking.EndTime(),
	})
	return result, nil
}

func (s *ServiceImpl) loadForChange(ctx context.Context, actor user.User, ref string) (booking.Booking, error) {
	parsed, err := conflict.ParseRef(ref)
	if err != nil {
		return booking.Booking{}, err
	}
	id, err := conflict.BookingId(parsed)
	if err != nil {
		return booking.Booking{}, err
	}
	b, err := s.store.Repos().Bookings.Get(ctx, id)
	if err != nil {
		return booking.Booking{}, err
	}
	if err := s.policy.CanModify(actor, b); err != nil {
		return booking.Booking{}, err
	}
	if !b.IsActive() {
		return booking.Booking{}, ErrBookingNotActive
	}
	return b, nil
}

func (s *ServiceImpl) CancelBooking(ctx context.Context, actor user.User, ref string) (booking.Booking, error) {
	b, err := s.loadForChange(ctx, actor, ref)
	if err != nil {
		return booking.Booking{}, err
	}

	var cancelled booking.Booking
	err = s.store.Locked(ctx, []string{bookingLockKey(b.InstructorId, b.Date)}, func(repos Repos) error {
		current, err := repos.Bookings.Get(ctx, b.Id)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return ErrBookingNotActive
		}
		cancelled, err = repos.Bookings.UpdateStatus(ctx, b.Id, booking.StatusCancelled)
		if err != nil {
			return err
		}
		if current.CreditsCharged > 0 {
			_, err = repos.Credits.Apply(ctx, credits.Transaction{
				UserId:    current.StudentId,
				Delta:     current.CreditsCharged,
				Reason:    credits.ReasonBookingRefund,
				BookingId: current.Id,
			})
		}
		return err
	})
	if err != nil {
		return booking.Booking{}, err
	}
	log.Infof("booking %d cancelled by user %d", b.Id, actor.Id)

	s.publish(ctx, event_bus.BookingCancelledType, event_bus.BookingCancelled{
		BookingId:    cancelled.Id,
		InstructorId: cancelled.InstructorId,
		StudentId:    cancelled.StudentId,
		CancelledBy:  actor.Id,
	})
	return cancelled, nil
}

func (s *ServiceImpl) RescheduleBooking(ctx context.Context, actor user.User, ref string, start time.Time, end time.Time) (BookingResult, error) {
	b, err := s.loadForChange(ctx, actor, ref)
	if err != nil {
		return BookingResult{}, err
	}
	date, r, err := s.toRange(start, end)
	if err != nil {
		return BookingResult{}, err
	}
	if b.CreditsCharged > 0 && credits.CostOf(r.Duration) != b.CreditsCharged {
		return BookingResult{}, fmt.Errorf("%w: a credit-paid lesson keeps its length", ErrInvalidInput)
	}
	if err := s.policy.CanBookAt(actor, b.InstructorId, start); err != nil {
		return BookingResult{}, err
	}

	var result BookingResult
	keys := []string{
		bookingLockKey(b.InstructorId, b.Date),
		bookingLockKey(b.InstructorId, date),
		recurringLockKey(b.InstructorId, slot.Weekday(date)),
	}
	err = s.store.Locked(ctx, keys, func(repos Repos) error {
		resolver := conflict.NewResolver(s.availability, repos.Bookings, repos.Recurring)
		check, err := resolver.Check(ctx, conflict.Request{
			InstructorId:     b.InstructorId,
			StudentId:        b.StudentId,
			Date:             date,
			Start:            r.Start,
			Duration:         r.Duration,
			ExcludeBookingId: b.Id,
		})
		if err != nil {
			return err
		}
		if !check.Allowed() {
			result = BookingResult{Reason: check.Reason, Conflict: check}
			return nil
		}
		moved, err := repos.Bookings.Reschedule(ctx, b.Id, date, r.Start, r.Duration)
		if err != nil {
			return err
		}
		result = BookingResult{Booking: moved}
		return nil
	})
	if err != nil {
		return BookingResult{}, err
	}
	recordDecision(result)
	return result, nil
}

func (s *ServiceImpl) MarkCompleted(ctx context.Context, actor user.User, ref string) (booking.Booking, error) {
	parsed, err := conflict.ParseRef(ref)
	if err != nil {
		return booking.Booking{}, err
	}
	id, err := conflict.BookingId(parsed)
	if err != nil {
		return booking.Booking{}, err
	}
	repos := s.store.Repos()
	b, err := repos.Bookings.Get(ctx, id)
	if err != nil {
		return booking.Booking{}, err
	}
	if !actor.Manages(b.InstructorId) {
		return booking.Booking{}, access.ErrForbidden
	}
	if !b.IsActive() {
		return booking.Booking{}, ErrBookingNotActive
	}
	if s.clock.Now().Before(b.StartTime()) {
		return booking.Booking{}, fmt.Errorf("%w: lesson has not started yet", ErrInvalidInput)
	}
	return repos.Bookings.UpdateStatus(ctx, b.Id, booking.StatusCompleted)
}

// GetEvents merges persisted bookings, virtual recurring occurrences and external busy
// blocks overlapping [from, to), ordered by start.
func (s *ServiceImpl) GetEvents(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]CalendarEvent, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after its start", ErrInvalidInput)
	}
	repos := s.store.Repos()

	lastDate := slot.Date(to)
	if !lastDate.Equal(to) {
		lastDate = lastDate.AddDate(0, 0, 1)
	}
	bookings, err := repos.Bookings.ListByInstructor(ctx, instructorId, slot.Date(from), lastDate)
	if err != nil {
		return nil, err
	}
	reservations, err := repos.Recurring.ListByInstructor(ctx, instructorId)
	if err != nil {
		return nil, err
	}

	events := make([]CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		if !b.StartTime().Before(to) || !b.EndTime().After(from) {
			continue
		}
		events = append(events, CalendarEvent{
			Id:           conflict.PersistedBooking{Id: b.Id}.String(),
			Source:       SourceBooking,
			InstructorId: b.InstructorId,
			StudentId:    b.StudentId,
			Start:        b.StartTime(),
			End:          b.EndTime(),
			Status:       string(b.Status),
		})
	}
	for _, o := range conflict.Expand(reservations, from, to) {
		events = append(events, CalendarEvent{
			Id:           o.Ref.String(),
			Source:       SourceRecurring,
			InstructorId: o.Recurring.InstructorId,
			StudentId:    o.Recurring.OwnerId,
			Start:        o.Start,
			End:          o.End,
			Status:       string(booking.StatusBooked),
		})
	}
	for _, block := range s.calendar.GetEvents(ctx, instructorId, from, to) {
		if !block.StartTime().Before(to) || !block.EndTime().After(from) {
			continue
		}
		events = append(events, CalendarEvent{
			Id:           block.EventId,
			Source:       SourceExternal,
			InstructorId: instructorId,
			Start:        block.StartTime(),
			End:          block.EndTime(),
			Status:       "busy",
			Summary:      block.Summary,
		})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func canManageSubscription(actor user.User, sub subscription.Subscription) bool {
	return actor.IsAdmin() || actor.Id == sub.UserId
}

func (s *ServiceImpl) PreviewCancellation(ctx context.Context, actor user.User, subscriptionId int) (CancellationPreview, error) {
	sub, err := s.subscriptions.Get(ctx, subscriptionId)
	if err != nil {
		return CancellationPreview{}, err
	}
	if !canManageSubscription(actor, sub) {
		return CancellationPreview{}, access.ErrForbidden
	}
	repos := s.store.Repos()
	balance, err := repos.Credits.Balance(ctx, sub.UserId)
	if err != nil {
		return CancellationPreview{}, err
	}
	hasRecurring, err := s.recurring.hasReservation(ctx, repos, sub.Id)
	if err != nil {
		return CancellationPreview{}, err
	}
	proration := subscription.Calculate(sub, s.clock.Now(), s.cfg.CreditRateCents)
	return CancellationPreview{
		Proration:                proration,
		CreditsToBeAwarded:       proration.Credits,
		CreditsAfterCancellation: balance + proration.Credits,
		HasRecurringBooking:      hasRecurring,
	}, nil
}

func (s *ServiceImpl) CancelSubscription(ctx context.Context, actor user.User, subscriptionId int) (CancellationResult, error) {
	sub, err := s.subscriptions.Sync(ctx, subscriptionId)
	if err != nil {
		return CancellationResult{}, err
	}
	if !canManageSubscription(actor, sub) {
		return CancellationResult{}, access.ErrForbidden
	}
	if sub.Status == subscription.StatusCanceled || sub.Status == subscription.StatusExpired {
		return CancellationResult{}, ErrSubscriptionEnded
	}
	proration := subscription.Calculate(sub, s.clock.Now(), s.cfg.CreditRateCents)

	if err := s.subscriptions.CancelUpstream(ctx, sub); err != nil {
		log.Errorf("failed to cancel subscription %d upstream: %v", sub.Id, err)
		return CancellationResult{}, err
	}

	keys, err := s.recurring.lockKeys(ctx, sub.Id)
	if err != nil {
		return CancellationResult{}, err
	}
	result := CancellationResult{Proration: proration}
	var transition subscription.Transition
	err = s.store.Locked(ctx, keys, func(repos Repos) error {
		current, err := repos.Subscriptions.Get(ctx, sub.Id)
		if err != nil {
			return err
		}
		if proration.Eligible && proration.Credits > 0 {
			result.Balance, err = repos.Credits.Apply(ctx, credits.Transaction{
				UserId:         current.UserId,
				Delta:          proration.Credits,
				Reason:         credits.ReasonProration,
				SubscriptionId: current.Id,
			})
			if err != nil {
				return err
			}
			result.CreditsAwarded = proration.Credits
			_, err = repos.Audit.Record(ctx, audit.Event{
				Kind:        audit.KindCreditsAwarded,
				SubjectType: audit.SubjectUser,
				SubjectId:   current.UserId,
				Payload: map[string]any{
					"credits":        proration.Credits,
					"subscriptionId": current.Id,
					"remainingDays":  proration.Breakdown.RemainingDays,
					"totalDays":      proration.Breakdown.TotalDays,
				},
			})
			if err != nil {
				return err
			}
		} else {
			result.Balance, err = repos.Credits.Balance(ctx, current.UserId)
			if err != nil {
				return err
			}
		}

		result.RecurringReleased, err = s.recurring.release(ctx, repos, current.Id, releaseCanceled)
		if err != nil {
			return err
		}

		state := current.State()
		state.Status = subscription.StatusCanceled
		state.CancelAtPeriodEnd = false
		transition, err = subscription.ApplyState(ctx, repos.Subscriptions, repos.Audit, current, state, subscription.ReasonUserCancellation)
		return err
	})
	if err != nil {
		log.Errorf("failed to cancel subscription %d: %v", sub.Id, err)
		return CancellationResult{}, err
	}
	s.subscriptions.Publish(ctx, transition)
	result.Subscription = transition.After
	log.Infof("subscription %d cancelled, %d credits awarded", sub.Id, result.CreditsAwarded)
	return result, nil
}

func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, data any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, data)); err != nil {
		log.Errorf("failed to publish %s: %v", eventType, err)
	}
}
