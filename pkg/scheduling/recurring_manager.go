package scheduling

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/access"
	"github.com/tutorhub/tutorhub/pkg/audit"
	"github.com/tutorhub/tutorhub/pkg/conflict"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/slot"
	"github.com/tutorhub/tutorhub/pkg/subscription"
	"github.com/tutorhub/tutorhub/pkg/user"
)

var ErrNotEligible = errors.New("subscription is not eligible for a recurring booking")

// Ineligibility reasons returned by CheckEligibility.
const (
	IneligibleNotActive       = "subscription_not_active"
	IneligibleCancelAtEnd     = "cancel_at_period_end"
	IneligibleNotAMembership  = "not_a_membership"
	IneligibleAlreadyReserved = "already_reserved"
)

const (
	releaseCanceled    = "canceled"
	releaseExpired     = "expired"
	releaseNonRenewing = "non_renewing"
	releaseLapsed      = "lapsed"
	releaseRemoved     = "removed"
)

type Eligibility struct {
	Eligible                    bool
	Reason                      string
	HasExistingRecurringBooking bool
}

type RecurringRequest struct {
	SubscriptionId int
	InstructorId   int
	DayOfWeek      int
	StartSlot      int
	Duration       int
}

// RecurringPatch changes the fields that are set; the instructor never changes.
type RecurringPatch struct {
	DayOfWeek *int
	StartSlot *int
	Duration  *int
}

type RecurringResult struct {
	Recurring recurring.RecurringBooking
	Reason    conflict.Reason
	Conflict  conflict.Result
}

func (r RecurringResult) Rejected() bool {
	return r.Reason != ""
}

// RecurringManager owns the single standing weekly booking of a membership subscription.
type RecurringManager struct {
	store         Store
	availability  conflict.Availability
	subscriptions subscription.Service
	clock         utils.Clock
	granularity   int
}

func NewRecurringManager(store Store, availability conflict.Availability, subscriptions subscription.Service, clock utils.Clock, granularitySlots int) *RecurringManager {
	if granularitySlots <= 0 {
		granularitySlots = 1
	}
	return &RecurringManager{
		store:         store,
		availability:  availability,
		subscriptions: subscriptions,
		clock:         clock,
		granularity:   granularitySlots,
	}
}

func eligibilityOf(sub subscription.Subscription, hasExisting bool) Eligibility {
	e := Eligibility{HasExistingRecurringBooking: hasExisting}
	switch {
	case !sub.IsMembership():
		e.Reason = IneligibleNotAMembership
	case !sub.IsActive():
		e.Reason = IneligibleNotActive
	case sub.CancelAtPeriodEnd:
		e.Reason = IneligibleCancelAtEnd
	case hasExisting:
		e.Reason = IneligibleAlreadyReserved
	default:
		e.Eligible = true
	}
	return e
}

func (m *RecurringManager) hasReservation(ctx context.Context, repos Repos, subscriptionId int) (bool, error) {
	_, err := repos.Recurring.GetBySubscription(ctx, subscriptionId)
	if errors.Is(err, recurring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckEligibility syncs the subscription with the payment provider first, so a
// subscription already canceled upstream is reported as ineligible.
func (m *RecurringManager) CheckEligibility(ctx context.Context, actor user.User, subscriptionId int) (Eligibility, error) {
	sub, err := m.subscriptions.Sync(ctx, subscriptionId)
	if err != nil {
		return Eligibility{}, err
	}
	if !canManageSubscription(actor, sub) {
		return Eligibility{}, access.ErrForbidden
	}
	existing, err := m.hasReservation(ctx, m.store.Repos(), sub.Id)
	if err != nil {
		return Eligibility{}, err
	}
	return eligibilityOf(sub, existing), nil
}

func (m *RecurringManager) validate(dayOfWeek int, r slot.Range) error {
	if err := slot.ValidateWeekday(dayOfWeek); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Duration%m.granularity != 0 {
		return fmt.Errorf("%w: duration must be a multiple of %d slots", ErrInvalidInput, m.granularity)
	}
	return nil
}

func (m *RecurringManager) Create(ctx context.Context, actor user.User, req RecurringRequest) (RecurringResult, error) {
	if err := m.validate(req.DayOfWeek, slot.Range{Start: req.StartSlot, Duration: req.Duration}); err != nil {
		return RecurringResult{}, err
	}
	sub, err := m.subscriptions.Sync(ctx, req.SubscriptionId)
	if err != nil {
		return RecurringResult{}, err
	}
	if !canManageSubscription(actor, sub) {
		return RecurringResult{}, access.ErrForbidden
	}
	if req.InstructorId == sub.UserId {
		return RecurringResult{}, fmt.Errorf("%w: instructors cannot reserve themselves", ErrInvalidInput)
	}

	var result RecurringResult
	keys := []string{recurringLockKey(req.InstructorId, req.DayOfWeek), subscriptionLockKey(sub.Id)}
	err = m.store.Locked(ctx, keys, func(repos Repos) error {
		existing, err := m.hasReservation(ctx, repos, sub.Id)
		if err != nil {
			return err
		}
		if e := eligibilityOf(sub, existing); !e.Eligible {
			return fmt.Errorf("%w: %s", ErrNotEligible, e.Reason)
		}

		resolver := conflict.NewResolver(m.availability, repos.Bookings, repos.Recurring)
		check, err := resolver.CheckRecurring(ctx, conflict.RecurringRequest{
			InstructorId: req.InstructorId,
			OwnerId:      sub.UserId,
			DayOfWeek:    req.DayOfWeek,
			Start:        req.StartSlot,
			Duration:     req.Duration,
			From:         m.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !check.Allowed() {
			result = RecurringResult{Reason: check.Reason, Conflict: check}
			return nil
		}

		created, err := repos.Recurring.Create(ctx, recurring.RecurringBooking{
			SubscriptionId: sub.Id,
			InstructorId:   req.InstructorId,
			OwnerId:        sub.UserId,
			DayOfWeek:      req.DayOfWeek,
			StartSlot:      req.StartSlot,
			Duration:       req.Duration,
		})
		if err != nil {
			return err
		}
		if _, err := repos.Audit.Record(ctx, audit.Event{
			Kind:        audit.KindRecurringReserved,
			SubjectType: audit.SubjectRecurring,
			SubjectId:   created.Id,
			Payload: map[string]any{
				"subscriptionId": sub.Id,
				"instructorId":   created.InstructorId,
				"dayOfWeek":      created.DayOfWeek,
				"startSlot":      created.StartSlot,
				"duration":       created.Duration,
			},
		}); err != nil {
			return err
		}
		result = RecurringResult{Recurring: created}
		return nil
	})
	if errors.Is(err, recurring.ErrAlreadyExists) {
		err = fmt.Errorf("%w: %s", ErrNotEligible, IneligibleAlreadyReserved)
	}
	if err != nil {
		return RecurringResult{}, err
	}
	if !result.Rejected() {
		log.Infof("recurring booking %d reserved for subscription %d", result.Recurring.Id, sub.Id)
	}
	return result, nil
}

func canChangeRecurring(actor user.User, rb recurring.RecurringBooking) bool {
	return actor.Id == rb.OwnerId || actor.Manages(rb.InstructorId)
}

func (m *RecurringManager) Update(ctx context.Context, actor user.User, subscriptionId int, patch RecurringPatch) (RecurringResult, error) {
	current, err := m.store.Repos().Recurring.GetBySubscription(ctx, subscriptionId)
	if err != nil {
		return RecurringResult{}, err
	}
	if !canChangeRecurring(actor, current) {
		return RecurringResult{}, access.ErrForbidden
	}
	merged := current
	if patch.DayOfWeek != nil {
		merged.DayOfWeek = *patch.DayOfWeek
	}
	if patch.StartSlot != nil {
		merged.StartSlot = *patch.StartSlot
	}
	if patch.Duration != nil {
		merged.Duration = *patch.Duration
	}
	if err := m.validate(merged.DayOfWeek, merged.Range()); err != nil {
		return RecurringResult{}, err
	}
	sub, err := m.subscriptions.Sync(ctx, subscriptionId)
	if err != nil {
		return RecurringResult{}, err
	}
	if e := eligibilityOf(sub, false); !e.Eligible {
		return RecurringResult{}, fmt.Errorf("%w: %s", ErrNotEligible, e.Reason)
	}

	var result RecurringResult
	keys := []string{
		recurringLockKey(current.InstructorId, current.DayOfWeek),
		recurringLockKey(merged.InstructorId, merged.DayOfWeek),
		subscriptionLockKey(subscriptionId),
	}
	err = m.store.Locked(ctx, keys, func(repos Repos) error {
		resolver := conflict.NewResolver(m.availability, repos.Bookings, repos.Recurring)
		check, err := resolver.CheckRecurring(ctx, conflict.RecurringRequest{
			InstructorId: merged.InstructorId,
			OwnerId:      merged.OwnerId,
			DayOfWeek:    merged.DayOfWeek,
			Start:        merged.StartSlot,
			Duration:     merged.Duration,
			ExcludeId:    merged.Id,
			From:         m.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !check.Allowed() {
			result = RecurringResult{Reason: check.Reason, Conflict: check}
			return nil
		}
		updated, err := repos.Recurring.Update(ctx, merged)
		if err != nil {
			return err
		}
		if _, err := repos.Audit.Record(ctx, audit.Event{
			Kind:        audit.KindRecurringUpdated,
			SubjectType: audit.SubjectRecurring,
			SubjectId:   updated.Id,
			Payload: map[string]any{
				"subscriptionId": subscriptionId,
				"dayOfWeek":      updated.DayOfWeek,
				"startSlot":      updated.StartSlot,
				"duration":       updated.Duration,
				"updatedBy":      actor.Id,
			},
		}); err != nil {
			return err
		}
		result = RecurringResult{Recurring: updated}
		return nil
	})
	if err != nil {
		return RecurringResult{}, err
	}
	return result, nil
}

// Delete removes the subscription's reservation on behalf of its instructor or an admin.
// Deleting when none exists is not an error.
func (m *RecurringManager) Delete(ctx context.Context, actor user.User, subscriptionId int) error {
	current, err := m.store.Repos().Recurring.GetBySubscription(ctx, subscriptionId)
	if errors.Is(err, recurring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !actor.Manages(current.InstructorId) {
		return access.ErrForbidden
	}
	_, err = m.releaseLocked(ctx, subscriptionId, releaseRemoved)
	return err
}

func (m *RecurringManager) lockKeys(ctx context.Context, subscriptionId int) ([]string, error) {
	keys := []string{subscriptionLockKey(subscriptionId)}
	rb, err := m.store.Repos().Recurring.GetBySubscription(ctx, subscriptionId)
	if errors.Is(err, recurring.ErrNotFound) {
		return keys, nil
	}
	if err != nil {
		return nil, err
	}
	return append(keys, recurringLockKey(rb.InstructorId, rb.DayOfWeek)), nil
}

func (m *RecurringManager) releaseLocked(ctx context.Context, subscriptionId int, reason string) (bool, error) {
	keys, err := m.lockKeys(ctx, subscriptionId)
	if err != nil {
		return false, err
	}
	var released bool
	err = m.store.Locked(ctx, keys, func(repos Repos) error {
		released, err = m.release(ctx, repos, subscriptionId, reason)
		return err
	})
	return released, err
}

// release deletes the reservation inside the caller's transaction and records why.
func (m *RecurringManager) release(ctx context.Context, repos Repos, subscriptionId int, reason string) (bool, error) {
	rb, err := repos.Recurring.GetBySubscription(ctx, subscriptionId)
	if errors.Is(err, recurring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := repos.Recurring.DeleteBySubscription(ctx, subscriptionId)
	if err != nil || !deleted {
		return false, err
	}
	_, err = repos.Audit.Record(ctx, audit.Event{
		Kind:        audit.KindRecurringReleased,
		SubjectType: audit.SubjectRecurring,
		SubjectId:   rb.Id,
		Payload: map[string]any{
			"subscriptionId": subscriptionId,
			"reason":         reason,
		},
	})
	if err != nil {
		return false, err
	}
	log.Infof("recurring booking %d released (%s)", rb.Id, reason)
	return true, nil
}

// Subscribe releases reservations when their subscription stops being eligible.
func (m *RecurringManager) Subscribe(eventBus *event_bus.EventBus) (unsubscribe func()) {
	reasons := map[event_bus.EventType]string{
		event_bus.SubscriptionCanceledType:    releaseCanceled,
		event_bus.SubscriptionExpiredType:     releaseExpired,
		event_bus.SubscriptionNonRenewingType: releaseNonRenewing,
		event_bus.SubscriptionLapsedType:      releaseLapsed,
	}
	return event_bus.SubscribeTypedAll(eventBus, slices.Collect(maps.Keys(reasons)),
		func(e event_bus.EventT[event_bus.SubscriptionStatusChanged]) error {
			_, err := m.releaseLocked(e.Context(), e.Data.SubscriptionId, reasons[e.Type])
			if err != nil {
				log.Errorf("failed to release recurring booking of subscription %d: %v", e.Data.SubscriptionId, err)
			}
			return err
		})
}
