package google

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/pkg/availability"
)

type sourceStub struct {
	mu     sync.Mutex
	events []RawEvent
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (s *sourceStub) List(ctx context.Context, instructorId int, calendarId string, from time.Time, to time.Time) ([]RawEvent, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, s.err
}

func (s *sourceStub) set(events []RawEvent, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.err = err
}

type weeklyStub map[int][]availability.Window

func (w weeklyStub) GetWeekly(ctx context.Context, instructorId int) ([]availability.Window, error) {
	return w[instructorId], nil
}

const instructorId = 3

var (
	ctx    = context.Background()
	monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	from   = monday
	to     = monday.AddDate(0, 0, 7)
)

func newAdapter(source EventSource, repo Repository, windows weeklyStub, ttl time.Duration) *Adapter {
	return NewAdapter(source, repo, windows, cache.NewMemory[[]Block](ttl), time.Second)
}

func TestAdapter_GetEvents(t *testing.T) {
	t.Run("should cover timed events with half-hour blocks", func(t *testing.T) {
		// given
		source := &sourceStub{events: []RawEvent{{
			Id:    "e1",
			Start: monday.Add(10*time.Hour + 10*time.Minute),
			End:   monday.Add(10*time.Hour + 50*time.Minute),
		}}}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Minute)

		// when
		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		// then
		require.Len(t, blocks, 1)
		assert.Equal(t, monday, blocks[0].Date)
		assert.Equal(t, 40, blocks[0].StartSlot)
		assert.Equal(t, 4, blocks[0].Duration)
	})

	t.Run("should split events crossing midnight", func(t *testing.T) {
		source := &sourceStub{events: []RawEvent{{
			Id:    "late",
			Start: monday.Add(23 * time.Hour),
			End:   monday.Add(25 * time.Hour),
		}}}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Minute)

		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		require.Len(t, blocks, 2)
		assert.Equal(t, Block{EventId: "late", Date: monday, StartSlot: 92, Duration: 4}, blocks[0])
		assert.Equal(t, Block{EventId: "late", Date: monday.AddDate(0, 0, 1), StartSlot: 0, Duration: 4}, blocks[1])
	})

	t.Run("should ignore all-day events by default", func(t *testing.T) {
		source := &sourceStub{events: []RawEvent{{Id: "holiday", Start: monday, End: monday.AddDate(0, 0, 1), AllDay: true}}}
		windows := weeklyStub{instructorId: {{DayOfWeek: 1, StartSlot: 36, Duration: 32}}}
		adapter := newAdapter(source, NewRepositoryStub(), windows, time.Minute)

		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		assert.Empty(t, blocks)
	})

	t.Run("should block only availability windows for all-day events", func(t *testing.T) {
		// given Monday has two windows and the instructor blocks all-day events
		repo := NewRepositoryStub()
		require.NoError(t, repo.SaveSettings(ctx, Settings{InstructorId: instructorId, CalendarId: "primary", AllDayPolicy: AllDayBlock}))
		source := &sourceStub{events: []RawEvent{{Id: "holiday", Start: monday, End: monday.AddDate(0, 0, 1), AllDay: true}}}
		windows := weeklyStub{instructorId: {
			{DayOfWeek: 1, StartSlot: 36, Duration: 12},
			{DayOfWeek: 1, StartSlot: 56, Duration: 8},
			{DayOfWeek: 2, StartSlot: 36, Duration: 12},
		}}
		adapter := newAdapter(source, repo, windows, time.Minute)

		// when
		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		// then
		require.Len(t, blocks, 2)
		assert.Equal(t, 36, blocks[0].StartSlot)
		assert.Equal(t, 12, blocks[0].Duration)
		assert.Equal(t, 56, blocks[1].StartSlot)
		assert.Equal(t, 8, blocks[1].Duration)
	})

	t.Run("should place all-day events in the calendar's timezone", func(t *testing.T) {
		warsaw, err := time.LoadLocation("Europe/Warsaw")
		require.NoError(t, err)
		repo := NewRepositoryStub()
		require.NoError(t, repo.SaveSettings(ctx, Settings{InstructorId: instructorId, CalendarId: "primary", AllDayPolicy: AllDayBlock}))
		// Monday in Warsaw is Sunday 23:00 UTC to Monday 23:00 UTC
		source := &sourceStub{events: []RawEvent{{
			Id:     "holiday",
			Start:  time.Date(2026, 1, 5, 0, 0, 0, 0, warsaw),
			End:    time.Date(2026, 1, 6, 0, 0, 0, 0, warsaw),
			AllDay: true,
		}}}
		windows := weeklyStub{instructorId: {
			{DayOfWeek: 0, StartSlot: 88, Duration: 8},
			{DayOfWeek: 1, StartSlot: 88, Duration: 8},
		}}
		adapter := newAdapter(source, repo, windows, time.Minute)

		blocks := adapter.GetEvents(ctx, instructorId, from.AddDate(0, 0, -1), to)

		require.Len(t, blocks, 2)
		assert.Equal(t, Block{EventId: "holiday", Date: monday.AddDate(0, 0, -1), StartSlot: 92, Duration: 4}, blocks[0])
		assert.Equal(t, Block{EventId: "holiday", Date: monday, StartSlot: 88, Duration: 4}, blocks[1])
	})

	t.Run("should serve fresh results from cache", func(t *testing.T) {
		source := &sourceStub{events: []RawEvent{{Id: "e1", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)}}}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Minute)

		adapter.GetEvents(ctx, instructorId, from, to)
		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		assert.Len(t, blocks, 1)
		assert.Equal(t, int32(1), source.calls.Load())
	})

	t.Run("should fall back to stale results when upstream fails", func(t *testing.T) {
		// given a zero TTL so every read goes upstream
		source := &sourceStub{events: []RawEvent{{Id: "e1", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)}}}
		adapter := newAdapter(source, NewRepositoryStub(), nil, 0)
		first := adapter.GetEvents(ctx, instructorId, from, to)
		source.set(nil, errors.New("503"))

		// when
		second := adapter.GetEvents(ctx, instructorId, from, to)

		// then
		assert.Equal(t, int32(2), source.calls.Load())
		assert.Equal(t, first, second)
	})

	t.Run("should return no blocks when upstream fails without cache", func(t *testing.T) {
		source := &sourceStub{err: errors.New("503")}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Minute)

		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		assert.NotNil(t, blocks)
		assert.Empty(t, blocks)
	})

	t.Run("should give up after the timeout", func(t *testing.T) {
		source := &sourceStub{gate: make(chan struct{})}
		adapter := NewAdapter(source, NewRepositoryStub(), nil, cache.NewMemory[[]Block](time.Minute), 50*time.Millisecond)

		started := time.Now()
		blocks := adapter.GetEvents(ctx, instructorId, from, to)

		assert.Empty(t, blocks)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("should collapse concurrent identical fetches", func(t *testing.T) {
		source := &sourceStub{gate: make(chan struct{})}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				adapter.GetEvents(ctx, instructorId, from, to)
			}()
		}
		time.Sleep(100 * time.Millisecond)
		close(source.gate)
		wg.Wait()

		assert.Equal(t, int32(1), source.calls.Load())
	})
}

func TestAdapter_Subscribe(t *testing.T) {
	t.Run("should drop cached blocks when the instructor's calendar changes", func(t *testing.T) {
		// given
		bus := event_bus.NewEventBus()
		source := &sourceStub{events: []RawEvent{{Id: "e1", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)}}}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Hour)
		adapter.Subscribe(bus)
		adapter.GetEvents(ctx, instructorId, from, to)

		// when
		err := bus.Publish(event_bus.NewEvent(ctx, event_bus.InstructorCalendarChangedType,
			event_bus.InstructorCalendarChanged{InstructorId: instructorId}))
		require.NoError(t, err)
		adapter.GetEvents(ctx, instructorId, from, to)

		// then
		assert.Equal(t, int32(2), source.calls.Load())
	})

	t.Run("should keep other instructors cached", func(t *testing.T) {
		bus := event_bus.NewEventBus()
		source := &sourceStub{}
		adapter := newAdapter(source, NewRepositoryStub(), nil, time.Hour)
		adapter.Subscribe(bus)
		adapter.GetEvents(ctx, 33, from, to)

		err := bus.Publish(event_bus.NewEvent(ctx, event_bus.InstructorCalendarChangedType,
			event_bus.InstructorCalendarChanged{InstructorId: instructorId}))
		require.NoError(t, err)
		adapter.GetEvents(ctx, 33, from, to)

		assert.Equal(t, int32(1), source.calls.Load())
	})
}
