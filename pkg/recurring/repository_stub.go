package recurring

import (
	"context"
	"sort"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu     sync.RWMutex
	items  map[int]RecurringBooking
	nextId int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{items: make(map[int]RecurringBooking), nextId: 1}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	restore := r.Snapshot()
	if err := fn(r); err != nil {
		restore()
		return err
	}
	return nil
}

// Snapshot captures the current state and returns a function restoring it.
func (r *RepositoryStub) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	original := make(map[int]RecurringBooking, len(r.items))
	for k, v := range r.items {
		original[k] = v
	}
	originalNextId := r.nextId
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items = original
		r.nextId = originalNextId
	}
}

func (r *RepositoryStub) Get(ctx context.Context, id int) (RecurringBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rb, ok := r.items[id]
	if !ok {
		return RecurringBooking{}, ErrNotFound
	}
	return rb, nil
}

func (r *RepositoryStub) GetBySubscription(ctx context.Context, subscriptionId int) (RecurringBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rb := range r.items {
		if rb.SubscriptionId == subscriptionId {
			return rb, nil
		}
	}
	return RecurringBooking{}, ErrNotFound
}

func (r *RepositoryStub) filter(keep func(rb RecurringBooking) bool) []RecurringBooking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []RecurringBooking
	for _, rb := range r.items {
		if keep(rb) {
			result = append(result, rb)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayOfWeek != result[j].DayOfWeek {
			return result[i].DayOfWeek < result[j].DayOfWeek
		}
		return result[i].StartSlot < result[j].StartSlot
	})
	return result
}

func (r *RepositoryStub) ListByInstructor(ctx context.Context, instructorId int) ([]RecurringBooking, error) {
	return r.filter(func(rb RecurringBooking) bool { return rb.InstructorId == instructorId }), nil
}

func (r *RepositoryStub) ListByInstructorDay(ctx context.Context, instructorId int, dayOfWeek int) ([]RecurringBooking, error) {
	return r.filter(func(rb RecurringBooking) bool {
		return rb.InstructorId == instructorId && rb.DayOfWeek == dayOfWeek
	}), nil
}

func (r *RepositoryStub) Create(ctx context.Context, rb RecurringBooking) (RecurringBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.SubscriptionId == rb.SubscriptionId {
			return RecurringBooking{}, ErrAlreadyExists
		}
	}
	rb.Id = r.nextId
	r.nextId++
	rb.CreatedAt = time.Now()
	r.items[rb.Id] = rb
	return rb, nil
}

func (r *RepositoryStub) Update(ctx context.Context, rb RecurringBooking) (RecurringBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[rb.Id]
	if !ok {
		return RecurringBooking{}, ErrNotFound
	}
	existing.InstructorId = rb.InstructorId
	existing.DayOfWeek = rb.DayOfWeek
	existing.StartSlot = rb.StartSlot
	existing.Duration = rb.Duration
	r.items[rb.Id] = existing
	return existing, nil
}

func (r *RepositoryStub) DeleteBySubscription(ctx context.Context, subscriptionId int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rb := range r.items {
		if rb.SubscriptionId == subscriptionId {
			delete(r.items, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[int]RecurringBooking)
	r.nextId = 1
}
