package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

var ctx = context.Background()

const instructorId = 7

// 2026-01-05 is a Monday
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

var repoStub = NewRepositoryStub()
var clock = &utils.MockClock{FixedNow: monday.Add(8 * time.Hour)}

var service *ServiceImpl
var bus *event_bus.EventBus

func setup(t *testing.T) func() {
	bus = event_bus.NewEventBus()
	service = NewService(repoStub, cache.NewMemory[[]Window](time.Minute), bus, clock)
	return func() {
		repoStub.Reset()
	}
}

func mondayNineToFive() []Window {
	return []Window{{DayOfWeek: 1, StartSlot: 36, Duration: 32}}
}

func TestServiceImpl_SetWeekly(t *testing.T) {
	t.Run("should store windows and return them sorted", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		windows := []Window{
			{DayOfWeek: 3, StartSlot: 40, Duration: 8},
			{DayOfWeek: 1, StartSlot: 60, Duration: 4},
			{DayOfWeek: 1, StartSlot: 36, Duration: 8},
		}

		// when
		_, err := service.SetWeekly(ctx, instructorId, windows)
		require.NoError(t, err)
		stored, err := service.GetWeekly(ctx, instructorId)

		// then
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.Equal(t, []int{1, 1, 3}, []int{stored[0].DayOfWeek, stored[1].DayOfWeek, stored[2].DayOfWeek})
		assert.Equal(t, 36, stored[0].StartSlot)
		assert.Equal(t, 60, stored[1].StartSlot)
	})

	t.Run("should clear all windows with an empty list and be visible immediately", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())
		require.NoError(t, err)
		cached, err := service.GetWeekly(ctx, instructorId)
		require.NoError(t, err)
		require.Len(t, cached, 1)

		// when
		_, err = service.SetWeekly(ctx, instructorId, []Window{})

		// then
		require.NoError(t, err)
		windows, err := service.GetWeekly(ctx, instructorId)
		require.NoError(t, err)
		assert.Empty(t, windows)
	})

	t.Run("should keep previous schedule when replacement fails midway", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())
		require.NoError(t, err)
		repoStub.SetInsertError(errors.New("connection lost"))

		// when
		_, err = service.SetWeekly(ctx, instructorId, []Window{
			{DayOfWeek: 2, StartSlot: 36, Duration: 4},
			{DayOfWeek: 2, StartSlot: 50, Duration: 4},
		})

		// then
		require.Error(t, err)
		windows, err := service.GetWeekly(ctx, instructorId)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, 1, windows[0].DayOfWeek)
		assert.Equal(t, 36, windows[0].StartSlot)
	})

	t.Run("should reject windows crossing the day boundary", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.SetWeekly(ctx, instructorId, []Window{{DayOfWeek: 1, StartSlot: 90, Duration: 8}})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("should reject out of range weekday", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.SetWeekly(ctx, instructorId, []Window{{DayOfWeek: 7, StartSlot: 36, Duration: 4}})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("should publish calendar change", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		var changed []int
		event_bus.SubscribeTyped[event_bus.InstructorCalendarChanged](bus, event_bus.InstructorCalendarChangedType,
			func(e event_bus.EventT[event_bus.InstructorCalendarChanged]) error {
				changed = append(changed, e.Data.InstructorId)
				return nil
			})

		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())

		require.NoError(t, err)
		assert.Equal(t, []int{instructorId}, changed)
	})

	t.Run("should not cache windows read before a concurrent replacement committed", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())
		require.NoError(t, err)
		interleaved := &writeDuringRead{Repository: repoStub}
		racing := NewService(interleaved, cache.NewMemory[[]Window](time.Minute), nil, clock)
		interleaved.write = func() {
			_, err := racing.SetWeekly(ctx, instructorId, []Window{})
			require.NoError(t, err)
		}

		// when
		stale, err := racing.GetWeekly(ctx, instructorId)
		require.NoError(t, err)
		current, err := racing.GetWeekly(ctx, instructorId)

		// then
		require.NoError(t, err)
		assert.Len(t, stale, 1)
		assert.Empty(t, current)
	})
}

// writeDuringRead runs write once, after GetWindows has read but before it returns.
type writeDuringRead struct {
	Repository
	write func()
}

func (r *writeDuringRead) GetWindows(ctx context.Context, instructorId int) ([]Window, error) {
	windows, err := r.Repository.GetWindows(ctx, instructorId)
	if r.write != nil {
		write := r.write
		r.write = nil
		write()
	}
	return windows, err
}

func TestServiceImpl_IsWithinAvailability(t *testing.T) {
	teardown := setup(t)
	defer teardown()
	_, err := service.SetWeekly(ctx, instructorId, []Window{
		{DayOfWeek: 1, StartSlot: 36, Duration: 8}, // 09:00-11:00
		{DayOfWeek: 1, StartSlot: 46, Duration: 8}, // 11:30-13:30
		{DayOfWeek: 2, StartSlot: 36, Duration: 4}, // 09:00-10:00
		{DayOfWeek: 2, StartSlot: 40, Duration: 4}, // 10:00-11:00
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		dayOfWeek int
		start     int
		duration  int
		expected  bool
	}{
		{"fully inside a window", 1, 38, 4, true},
		{"exactly a window", 1, 36, 8, true},
		{"spanning the gap between two windows", 1, 42, 6, false},
		{"spanning two touching windows", 2, 38, 4, false},
		{"on another weekday", 3, 38, 4, false},
		{"starting before a window", 1, 34, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := service.IsWithinAvailability(ctx, instructorId, tt.dayOfWeek, tt.start, tt.duration)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}

	t.Run("rejects invalid input before evaluating", func(t *testing.T) {
		_, err := service.IsWithinAvailability(ctx, instructorId, 1, 94, 4)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestServiceImpl_IsAvailableOn(t *testing.T) {
	t.Run("should reject a range overlapping a blocked interval", func(t *testing.T) {
		// given
		teardown := setup(t)
		defer teardown()
		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())
		require.NoError(t, err)
		_, err = service.AddBlockedInterval(ctx, BlockedInterval{
			InstructorId: instructorId,
			Start:        monday.Add(12 * time.Hour),
			End:          monday.Add(13 * time.Hour),
			Reason:       "dentist",
		})
		require.NoError(t, err)

		// when
		blocked, err := service.IsAvailableOn(ctx, instructorId, monday, 50, 4)
		require.NoError(t, err)
		free, err := service.IsAvailableOn(ctx, instructorId, monday, 52, 4)
		require.NoError(t, err)
		nextWeek, err := service.IsAvailableOn(ctx, instructorId, monday.AddDate(0, 0, 7), 50, 4)
		require.NoError(t, err)

		// then
		assert.False(t, blocked)
		assert.True(t, free, "adjacent to the blocked interval")
		assert.True(t, nextWeek)
	})

	t.Run("should remove blocked interval", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		_, err := service.SetWeekly(ctx, instructorId, mondayNineToFive())
		require.NoError(t, err)
		b, err := service.AddBlockedInterval(ctx, BlockedInterval{
			InstructorId: instructorId,
			Start:        monday.Add(12 * time.Hour),
			End:          monday.Add(13 * time.Hour),
		})
		require.NoError(t, err)

		require.NoError(t, service.RemoveBlockedInterval(ctx, instructorId, b.Id))
		ok, err := service.IsAvailableOn(ctx, instructorId, monday, 50, 4)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.ErrorIs(t, service.RemoveBlockedInterval(ctx, instructorId, b.Id), ErrBlockedIntervalNotFound)
	})

	t.Run("should reject an interval ending before it starts", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.AddBlockedInterval(ctx, BlockedInterval{
			InstructorId: instructorId,
			Start:        monday.Add(13 * time.Hour),
			End:          monday.Add(12 * time.Hour),
		})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestServiceImpl_SetWeeklyLocal(t *testing.T) {
	t.Run("should convert New York business hours to UTC slots", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		windows, err := service.SetWeeklyLocal(ctx, instructorId, []LocalWindow{
			{DayOfWeek: time.Monday, Start: slot.TimeOfDay{Hour: 9}, End: slot.TimeOfDay{Hour: 17}},
		}, "America/New_York")

		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, 1, windows[0].DayOfWeek)
		assert.Equal(t, 56, windows[0].StartSlot) // 14:00 UTC in winter
		assert.Equal(t, 32, windows[0].Duration)
	})

	t.Run("should move evening hours to the next UTC weekday", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		windows, err := service.SetWeeklyLocal(ctx, instructorId, []LocalWindow{
			{DayOfWeek: time.Monday, Start: slot.TimeOfDay{Hour: 20}, End: slot.TimeOfDay{Hour: 23}},
		}, "America/New_York")

		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, 2, windows[0].DayOfWeek)
		assert.Equal(t, 4, windows[0].StartSlot)
		assert.Equal(t, 12, windows[0].Duration)
	})

	t.Run("should split a window crossing UTC midnight", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		windows, err := service.SetWeeklyLocal(ctx, instructorId, []LocalWindow{
			{DayOfWeek: time.Monday, Start: slot.TimeOfDay{Hour: 0, Minute: 30}, End: slot.TimeOfDay{Hour: 2}},
		}, "Europe/Warsaw")

		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.Equal(t, Window{Id: windows[0].Id, InstructorId: instructorId, DayOfWeek: 0, StartSlot: 94, Duration: 2}, windows[0])
		assert.Equal(t, Window{Id: windows[1].Id, InstructorId: instructorId, DayOfWeek: 1, StartSlot: 0, Duration: 4}, windows[1])
	})

	t.Run("should reject unknown timezone and unaligned times", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.SetWeeklyLocal(ctx, instructorId, nil, "Mars/Olympus")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = service.SetWeeklyLocal(ctx, instructorId, []LocalWindow{
			{DayOfWeek: time.Monday, Start: slot.TimeOfDay{Hour: 9, Minute: 10}, End: slot.TimeOfDay{Hour: 10}},
		}, "UTC")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
