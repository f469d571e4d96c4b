package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu       sync.RWMutex
	bookings map[int]Booking
	nextId   int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		bookings: make(map[int]Booking),
		nextId:   1,
	}
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
	original := make(map[int]Booking, len(r.bookings))
	for k, v := range r.bookings {
		original[k] = v
	}
	originalNextId := r.nextId
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.bookings = original
		r.nextId = originalNextId
	}
}

func (r *RepositoryStub) Create(ctx context.Context, b Booking) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.Id = r.nextId
	r.nextId++
	if b.Uid == "" {
		b.Uid = uuid.NewString()
	}
	b.CreatedAt = time.Now()
	r.bookings[b.Id] = b
	return b, nil
}

func (r *RepositoryStub) Get(ctx context.Context, id int) (Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return b, nil
}

func (r *RepositoryStub) filter(keep func(b Booking) bool) []Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Booking
	for _, b := range r.bookings {
		if keep(b) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].StartSlot < result[j].StartSlot
	})
	return result
}

func (r *RepositoryStub) ListBooked(ctx context.Context, instructorId int, date time.Time) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		return b.InstructorId == instructorId && b.Date.Equal(date) && b.Status == StatusBooked
	}), nil
}

func (r *RepositoryStub) ListBookedFrom(ctx context.Context, instructorId int, from time.Time) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		return b.InstructorId == instructorId && !b.Date.Before(from) && b.Status == StatusBooked
	}), nil
}

func (r *RepositoryStub) ListByInstructor(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		return b.InstructorId == instructorId && !b.Date.Before(from) && b.Date.Before(to) && b.Status != StatusCancelled
	}), nil
}

func (r *RepositoryStub) UpdateStatus(ctx context.Context, id int, status Status) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	b.Status = status
	r.bookings[id] = b
	return b, nil
}

func (r *RepositoryStub) Reschedule(ctx context.Context, id int, date time.Time, startSlot int, duration int) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	b.Date = date
	b.StartSlot = startSlot
	b.Duration = duration
	r.bookings[id] = b
	return b, nil
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = make(map[int]Booking)
	r.nextId = 1
}
