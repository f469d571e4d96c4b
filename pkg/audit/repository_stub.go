package audit

import (
	"context"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu     sync.RWMutex
	events []Event
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{}
}

func (r *RepositoryStub) Record(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Id = len(r.events) + 1
	event.CreatedAt = time.Now()
	r.events = append(r.events, event)
	return event, nil
}

func (r *RepositoryStub) List(ctx context.Context, subjectType string, subjectId int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Event
	for _, e := range r.events {
		if e.SubjectType == subjectType && e.SubjectId == subjectId {
			result = append(result, e)
		}
	}
	return result, nil
}

// Kinds returns the kinds of all recorded events in order (useful for test assertions)
func (r *RepositoryStub) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Snapshot captures the current state and returns a function restoring it.
func (r *RepositoryStub) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	original := append([]Event(nil), r.events...)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = original
	}
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
