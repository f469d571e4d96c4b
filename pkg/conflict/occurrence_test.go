package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/tutorhub/pkg/recurring"
)

func TestExpand(t *testing.T) {
	rb := recurring.RecurringBooking{Id: 3, SubscriptionId: 9, InstructorId: 1, OwnerId: 100, DayOfWeek: 2, StartSlot: 50, Duration: 4}

	t.Run("should materialize one occurrence per matching date", func(t *testing.T) {
		from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

		occurrences := Expand([]recurring.RecurringBooking{rb}, from, from.AddDate(0, 0, 14))

		require.Len(t, occurrences, 2)
		assert.Equal(t, time.Date(2026, 1, 6, 12, 30, 0, 0, time.UTC), occurrences[0].Start)
		assert.Equal(t, time.Date(2026, 1, 6, 13, 30, 0, 0, time.UTC), occurrences[0].End)
		assert.Equal(t, time.Date(2026, 1, 13, 12, 30, 0, 0, time.UTC), occurrences[1].Start)
		assert.NotEqual(t, occurrences[0].Ref.String(), occurrences[1].Ref.String())
	})

	t.Run("should derive the same identifier on every expansion", func(t *testing.T) {
		from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

		first := Expand([]recurring.RecurringBooking{rb}, from, from.AddDate(0, 0, 7))
		second := Expand([]recurring.RecurringBooking{rb}, from.AddDate(0, 0, 1), from.AddDate(0, 0, 2))

		require.Len(t, first, 1)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].Ref.String(), second[0].Ref.String())
	})

	t.Run("should skip occurrences outside the requested window", func(t *testing.T) {
		from := time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC)

		occurrences := Expand([]recurring.RecurringBooking{rb}, from, from.AddDate(0, 0, 1))

		assert.Empty(t, occurrences)
	})
}

func TestRefs(t *testing.T) {
	t.Run("should accept persisted booking ids", func(t *testing.T) {
		ref, err := ParseRef("42")

		require.NoError(t, err)
		id, err := BookingId(ref)
		require.NoError(t, err)
		assert.Equal(t, 42, id)
	})

	t.Run("should refuse virtual occurrences", func(t *testing.T) {
		virtual := VirtualOccurrence{RecurringId: 3, Date: time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)}

		_, err := ParseRef(virtual.String())
		assert.ErrorIs(t, err, ErrVirtualOccurrence)

		_, err = BookingId(virtual)
		assert.ErrorIs(t, err, ErrVirtualOccurrence)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, err := ParseRef("abc")

		assert.ErrorIs(t, err, ErrInvalidRef)
	})
}
