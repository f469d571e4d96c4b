package subscription

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/metrics"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/audit"
)

const (
	ReasonProviderDivergence = "provider_divergence"
	ReasonProviderWebhook    = "provider_webhook"
	ReasonExpiredAtPeriodEnd = "expired_at_period_end"
	ReasonUserCancellation   = "user_cancellation"
)

type Service interface {
	Get(ctx context.Context, id int) (Subscription, error)
	ListByUser(ctx context.Context, userId int) ([]Subscription, error)
	// Sync reconciles the local record with the payment provider and applies local expiry.
	Sync(ctx context.Context, id int) (Subscription, error)
	Apply(ctx context.Context, sub Subscription, state State, reason string) (Subscription, error)
	// CancelUpstream cancels the subscription at the payment provider. Locally managed
	// subscriptions are a no-op.
	CancelUpstream(ctx context.Context, sub Subscription) error
	// Publish emits lifecycle events for a committed transition.
	Publish(ctx context.Context, t Transition)
}

// Transition is the outcome of applying a state to a subscription.
type Transition struct {
	Before Subscription
	After  Subscription
	Reason string
}

func (t Transition) Changed() bool {
	return !t.Before.State().Equal(t.After.State())
}

type ServiceImpl struct {
	repo     Repository
	audit    audit.Repository
	provider PaymentProvider
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

// NewService creates the lifecycle service. provider and eventBus may be nil.
func NewService(repo Repository, auditRepo audit.Repository, provider PaymentProvider, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		audit:    auditRepo,
		provider: provider,
		eventBus: eventBus,
		clock:    clock,
	}
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Subscription, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) ListByUser(ctx context.Context, userId int) ([]Subscription, error) {
	return s.repo.ListByUser(ctx, userId)
}

func (s *ServiceImpl) Sync(ctx context.Context, id int) (Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if s.provider != nil && sub.ProviderSubscriptionId != "" {
		upstream, err := s.provider.Get(ctx, sub.ProviderSubscriptionId)
		if err != nil {
			log.Warnf("subscription %d: provider lookup failed, keeping local state: %v", id, err)
		} else if target := upstream.merged(sub.State()); !target.Equal(sub.State()) {
			sub, err = s.heal(ctx, sub, target)
			if err != nil {
				return Subscription{}, err
			}
		}
	}
	return s.expireIfDue(ctx, sub)
}

func (s *ServiceImpl) heal(ctx context.Context, sub Subscription, upstream State) (Subscription, error) {
	log.Warnf("subscription %d diverged from provider: local %s, upstream %s", sub.Id, sub.Status, upstream.Status)
	metrics.ProviderDivergences.Inc()
	_, err := s.audit.Record(ctx, audit.Event{
		Kind:        audit.KindProviderDivergence,
		SubjectType: audit.SubjectSubscription,
		SubjectId:   sub.Id,
		Payload: map[string]any{
			"localStatus":               string(sub.Status),
			"upstreamStatus":            string(upstream.Status),
			"localCancelAtPeriodEnd":    sub.CancelAtPeriodEnd,
			"upstreamCancelAtPeriodEnd": upstream.CancelAtPeriodEnd,
		},
	})
	if err != nil {
		return Subscription{}, err
	}
	return s.Apply(ctx, sub, upstream, ReasonProviderDivergence)
}

func (s *ServiceImpl) expireIfDue(ctx context.Context, sub Subscription) (Subscription, error) {
	if !sub.IsActive() || !sub.CancelAtPeriodEnd || s.clock.Now().Before(sub.CurrentPeriodEnd) {
		return sub, nil
	}
	state := sub.State()
	state.Status = StatusExpired
	return s.Apply(ctx, sub, state, ReasonExpiredAtPeriodEnd)
}

func (s *ServiceImpl) Apply(ctx context.Context, sub Subscription, state State, reason string) (Subscription, error) {
	var t Transition
	err := s.repo.WithTransaction(ctx, func(repo Repository, auditRepo audit.Repository) error {
		var err error
		t, err = ApplyState(ctx, repo, auditRepo, sub, state, reason)
		return err
	})
	if err != nil {
		return Subscription{}, err
	}
	s.Publish(ctx, t)
	return t.After, nil
}

// ApplyState persists state and records the change. It does not publish; callers running
// inside a larger transaction call Service.Publish after committing.
func ApplyState(ctx context.Context, repo Repository, auditRepo audit.Repository, sub Subscription, state State, reason string) (Transition, error) {
	state = state.merged(sub.State())
	if state.Equal(sub.State()) {
		return Transition{Before: sub, After: sub, Reason: reason}, nil
	}
	updated, err := repo.UpdateState(ctx, sub.Id, state)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to update subscription %d: %w", sub.Id, err)
	}
	_, err = auditRepo.Record(ctx, audit.Event{
		Kind:        audit.KindSubscriptionStatus,
		SubjectType: audit.SubjectSubscription,
		SubjectId:   sub.Id,
		Payload: map[string]any{
			"from":              string(sub.Status),
			"to":                string(updated.Status),
			"cancelAtPeriodEnd": updated.CancelAtPeriodEnd,
			"reason":            reason,
		},
	})
	if err != nil {
		return Transition{}, err
	}
	return Transition{Before: sub, After: updated, Reason: reason}, nil
}

func (s *ServiceImpl) Publish(ctx context.Context, t Transition) {
	if s.eventBus == nil || !t.Changed() {
		return
	}
	var eventType event_bus.EventType
	switch {
	case t.After.Status == StatusCanceled && t.Before.Status != StatusCanceled:
		eventType = event_bus.SubscriptionCanceledType
	case t.After.Status == StatusExpired && t.Before.Status != StatusExpired:
		eventType = event_bus.SubscriptionExpiredType
	case t.Before.IsActive() && !t.After.IsActive():
		eventType = event_bus.SubscriptionLapsedType
	case t.After.IsActive() && t.After.CancelAtPeriodEnd && !t.Before.CancelAtPeriodEnd:
		eventType = event_bus.SubscriptionNonRenewingType
	default:
		return
	}
	payload := event_bus.SubscriptionStatusChanged{
		SubscriptionId: t.After.Id,
		UserId:         t.After.UserId,
		OldStatus:      string(t.Before.Status),
		NewStatus:      string(t.After.Status),
		Reason:         t.Reason,
	}
	if err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, payload)); err != nil {
		log.Errorf("subscription %d: failed to publish %s: %v", t.After.Id, eventType, err)
	}
}

func (s *ServiceImpl) CancelUpstream(ctx context.Context, sub Subscription) error {
	if s.provider == nil || sub.ProviderSubscriptionId == "" {
		return nil
	}
	key := fmt.Sprintf("cancel:%d:%s", sub.Id, sub.ProviderSubscriptionId)
	_, err := s.provider.Cancel(ctx, sub.ProviderSubscriptionId, key)
	if err == nil {
		return nil
	}
	upstream, getErr := s.provider.Get(ctx, sub.ProviderSubscriptionId)
	if getErr == nil && (upstream.Status == StatusCanceled || upstream.Status == StatusExpired) {
		// already gone upstream; local state catches up in the caller
		log.Warnf("subscription %d: provider cancel failed but upstream is %s: %v", sub.Id, upstream.Status, err)
		metrics.ProviderDivergences.Inc()
		_, auditErr := s.audit.Record(ctx, audit.Event{
			Kind:        audit.KindProviderDivergence,
			SubjectType: audit.SubjectSubscription,
			SubjectId:   sub.Id,
			Payload: map[string]any{
				"localStatus":    string(sub.Status),
				"upstreamStatus": string(upstream.Status),
				"during":         "cancel",
			},
		})
		return auditErr
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, errors.Join(err, getErr))
}
