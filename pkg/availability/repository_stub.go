package availability

import (
	"context"
	"sort"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu             sync.RWMutex
	windows        map[int]Window // id -> window
	blocked        map[int]BlockedInterval
	nextId         int
	transactionErr error
	insertErr      error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		windows: make(map[int]Window),
		blocked: make(map[int]BlockedInterval),
		nextId:  1,
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	// Create a copy of the current state for rollback
	originalWindows := make(map[int]Window, len(r.windows))
	for k, v := range r.windows {
		originalWindows[k] = v
	}
	originalBlocked := make(map[int]BlockedInterval, len(r.blocked))
	for k, v := range r.blocked {
		originalBlocked[k] = v
	}
	originalNextId := r.nextId
	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil || r.transactionErr != nil {
		r.windows = originalWindows
		r.blocked = originalBlocked
		r.nextId = originalNextId
		if err != nil {
			return err
		}
		return r.transactionErr
	}
	return nil
}

func (r *RepositoryStub) GetWindows(ctx context.Context, instructorId int) ([]Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Window
	for _, w := range r.windows {
		if w.InstructorId == instructorId {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayOfWeek != result[j].DayOfWeek {
			return result[i].DayOfWeek < result[j].DayOfWeek
		}
		return result[i].StartSlot < result[j].StartSlot
	})
	return result, nil
}

func (r *RepositoryStub) DeleteWindows(ctx context.Context, instructorId int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, w := range r.windows {
		if w.InstructorId == instructorId {
			delete(r.windows, id)
			count++
		}
	}
	return count, nil
}

func (r *RepositoryStub) InsertWindows(ctx context.Context, instructorId int, windows []Window) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var created []Window
	for i, w := range windows {
		// fail after the first row so a partial write is visible without rollback
		if r.insertErr != nil && i == 1 {
			return nil, r.insertErr
		}
		w.Id = r.nextId
		w.InstructorId = instructorId
		r.windows[w.Id] = w
		r.nextId++
		created = append(created, w)
	}
	if r.insertErr != nil && len(windows) == 1 {
		return nil, r.insertErr
	}
	return created, nil
}

func (r *RepositoryStub) CreateBlocked(ctx context.Context, blocked BlockedInterval) (BlockedInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked.Id = r.nextId
	r.nextId++
	r.blocked[blocked.Id] = blocked
	return blocked, nil
}

func (r *RepositoryStub) DeleteBlocked(ctx context.Context, instructorId int, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocked[id]
	if !ok || b.InstructorId != instructorId {
		return ErrBlockedIntervalNotFound
	}
	delete(r.blocked, id)
	return nil
}

func (r *RepositoryStub) ListBlocked(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]BlockedInterval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []BlockedInterval
	for _, b := range r.blocked {
		if b.InstructorId == instructorId && b.Overlaps(from, to) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

// SetInsertError makes InsertWindows fail part way through (for testing rollback)
func (r *RepositoryStub) SetInsertError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertErr = err
}

// SetTransactionError makes the next transaction roll back with err
func (r *RepositoryStub) SetTransactionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionErr = err
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = make(map[int]Window)
	r.blocked = make(map[int]BlockedInterval)
	r.nextId = 1
	r.transactionErr = nil
	r.insertErr = nil
}
