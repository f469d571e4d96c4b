package subscription

import (
	"context"
	"sort"
	"sync"

	"github.com/tutorhub/tutorhub/pkg/audit"
)

type RepositoryStub struct {
	mu             sync.RWMutex
	plans          map[int]Plan
	subscriptions  map[int]Subscription
	nextId         int
	audit          *audit.RepositoryStub
	transactionErr error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		plans:         make(map[int]Plan),
		subscriptions: make(map[int]Subscription),
		nextId:        1,
		audit:         audit.NewRepositoryStub(),
	}
}

// WithAudit makes transactions record into auditRepo and roll it back with the subscriptions.
func (r *RepositoryStub) WithAudit(auditRepo *audit.RepositoryStub) *RepositoryStub {
	r.audit = auditRepo
	return r
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository, auditRepo audit.Repository) error) error {
	restore := r.Snapshot()
	restoreAudit := r.audit.Snapshot()
	err := fn(r, r.audit)
	if err == nil {
		r.mu.RLock()
		err = r.transactionErr
		r.mu.RUnlock()
	}
	if err != nil {
		restore()
		restoreAudit()
		return err
	}
	return nil
}

// SetTransactionError makes every transaction fail at commit.
func (r *RepositoryStub) SetTransactionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionErr = err
}

// Snapshot captures the current state and returns a function restoring it.
func (r *RepositoryStub) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make(map[int]Subscription, len(r.subscriptions))
	for k, v := range r.subscriptions {
		subs[k] = v
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.subscriptions = subs
	}
}

func (r *RepositoryStub) withPlan(s Subscription) Subscription {
	s.Plan = r.plans[s.PlanId]
	return s
}

func (r *RepositoryStub) Get(ctx context.Context, id int) (Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return r.withPlan(s), nil
}

func (r *RepositoryStub) GetByProviderId(ctx context.Context, providerSubscriptionId string) (Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subscriptions {
		if providerSubscriptionId != "" && s.ProviderSubscriptionId == providerSubscriptionId {
			return r.withPlan(s), nil
		}
	}
	return Subscription{}, ErrSubscriptionNotFound
}

func (r *RepositoryStub) ListByUser(ctx context.Context, userId int) ([]Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Subscription
	for _, s := range r.subscriptions {
		if s.UserId == userId {
			result = append(result, r.withPlan(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (r *RepositoryStub) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.Id = r.nextId
	r.nextId++
	r.plans[plan.Id] = plan
	return plan, nil
}

func (r *RepositoryStub) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.Id = r.nextId
	r.nextId++
	r.subscriptions[sub.Id] = sub
	return r.withPlan(sub), nil
}

func (r *RepositoryStub) UpdateState(ctx context.Context, id int, state State) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	s.Status = state.Status
	s.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	s.CurrentPeriodStart = state.PeriodStart
	s.CurrentPeriodEnd = state.PeriodEnd
	r.subscriptions[id] = s
	return r.withPlan(s), nil
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = make(map[int]Plan)
	r.subscriptions = make(map[int]Subscription)
	r.nextId = 1
	r.transactionErr = nil
}
