package event_bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_Publish(t *testing.T) {
	t.Run("should deliver typed payload in registration order", func(t *testing.T) {
		// given
		bus := NewEventBus()
		var calls []int
		for i := 1; i <= 5; i++ {
			i := i
			SubscribeTyped[InstructorCalendarChanged](bus, InstructorCalendarChangedType, func(e EventT[InstructorCalendarChanged]) error {
				calls = append(calls, i*100+e.Data.InstructorId)
				return nil
			})
		}

		// when
		err := bus.Publish(NewEvent(context.Background(), InstructorCalendarChangedType, InstructorCalendarChanged{InstructorId: 7}))

		// then
		require.NoError(t, err)
		assert.Equal(t, []int{107, 207, 307, 407, 507}, calls)
	})

	t.Run("should skip handlers expecting another payload type", func(t *testing.T) {
		bus := NewEventBus()
		called := false
		SubscribeTyped[BookingCreated](bus, BookingCreatedType, func(e EventT[BookingCreated]) error {
			called = true
			return nil
		})

		err := bus.Publish(NewEvent(context.Background(), BookingCreatedType, BookingCancelled{BookingId: 1}))

		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("should collect handler errors and recover panics", func(t *testing.T) {
		bus := NewEventBus()
		secondCalled := false
		bus.Subscribe(SubscriptionCanceledType, func(e Event) error { panic("boom") })
		bus.Subscribe(SubscriptionCanceledType, func(e Event) error {
			secondCalled = true
			return errors.New("failed")
		})

		err := bus.Publish(NewEvent(context.Background(), SubscriptionCanceledType, SubscriptionStatusChanged{}))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 handler(s) failed")
		assert.True(t, secondCalled)
	})

	t.Run("should stop delivery after unsubscribe", func(t *testing.T) {
		bus := NewEventBus()
		count := 0
		unsubscribe := bus.Subscribe(BookingCancelledType, func(e Event) error {
			count++
			return nil
		})

		require.NoError(t, bus.Publish(NewEvent(context.Background(), BookingCancelledType, BookingCancelled{})))
		unsubscribe()
		require.NoError(t, bus.Publish(NewEvent(context.Background(), BookingCancelledType, BookingCancelled{})))

		assert.Equal(t, 1, count)
	})

	t.Run("should route several event types to one typed handler", func(t *testing.T) {
		// given
		bus := NewEventBus()
		var seen []EventType
		unsubscribe := SubscribeTypedAll(bus, []EventType{SubscriptionCanceledType, SubscriptionExpiredType},
			func(e EventT[SubscriptionStatusChanged]) error {
				seen = append(seen, e.Type)
				return nil
			})

		// when
		require.NoError(t, bus.Publish(NewEvent(context.Background(), SubscriptionExpiredType, SubscriptionStatusChanged{SubscriptionId: 1})))
		require.NoError(t, bus.Publish(NewEvent(context.Background(), SubscriptionCanceledType, SubscriptionStatusChanged{SubscriptionId: 1})))
		unsubscribe()
		require.NoError(t, bus.Publish(NewEvent(context.Background(), SubscriptionCanceledType, SubscriptionStatusChanged{SubscriptionId: 1})))

		// then
		assert.Equal(t, []EventType{SubscriptionExpiredType, SubscriptionCanceledType}, seen)
	})

	t.Run("should not deliver when the context is already cancelled", func(t *testing.T) {
		bus := NewEventBus()
		called := false
		bus.Subscribe(BookingCreatedType, func(e Event) error {
			called = true
			return nil
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := bus.Publish(NewEvent(ctx, BookingCreatedType, BookingCreated{}))

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}
