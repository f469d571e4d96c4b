package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/access"
	"github.com/tutorhub/tutorhub/pkg/availability"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/google"
	"github.com/tutorhub/tutorhub/pkg/subscription"
	"github.com/tutorhub/tutorhub/pkg/user"
)

var ctx = context.Background()

// 2026-01-05 is a Monday, 2026-01-06 a Tuesday
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
var tuesday = monday.AddDate(0, 0, 1)

var (
	instructor = user.User{Id: 1, Role: user.RoleInstructor}
	member     = user.User{Id: 100, Role: user.RoleStudent}
	other      = user.User{Id: 200, Role: user.RoleStudent}
	admin      = user.User{Id: 900, Role: user.RoleAdmin}
)

type calendarStub struct {
	mu     sync.Mutex
	blocks []google.Block
}

func (c *calendarStub) GetEvents(ctx context.Context, instructorId int, from time.Time, to time.Time) []google.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks
}

type fixture struct {
	store         *StubStore
	provider      *subscription.ProviderStub
	bus           *event_bus.EventBus
	clock         *utils.MockClock
	calendar      *calendarStub
	subscriptions *subscription.ServiceImpl
	recurring     *RecurringManager
	service       *ServiceImpl
	published     []event_bus.EventType
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    NewStubStore(),
		provider: subscription.NewProviderStub(),
		bus:      event_bus.NewEventBus(),
		// Thursday, ten days into the membership period created by givenMembership
		clock:    &utils.MockClock{FixedNow: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
		calendar: &calendarStub{},
	}
	availabilityService := availability.NewService(availability.NewRepositoryStub(), cache.NewMemory[[]availability.Window](0), nil, f.clock)
	_, err := availabilityService.SetWeekly(ctx, instructor.Id, []availability.Window{
		{DayOfWeek: 1, StartSlot: 36, Duration: 32}, // Mon 09:00-17:00
		{DayOfWeek: 2, StartSlot: 36, Duration: 32}, // Tue 09:00-17:00
	})
	require.NoError(t, err)

	f.subscriptions = subscription.NewService(f.store.Subscriptions, f.store.Audit, f.provider, f.bus, f.clock)
	f.recurring = NewRecurringManager(f.store, availabilityService, f.subscriptions, f.clock, 2)
	f.recurring.Subscribe(f.bus)
	f.service = NewService(
		f.store,
		availabilityService,
		f.calendar,
		f.subscriptions,
		f.recurring,
		access.NewPolicy(f.clock, 24*time.Hour),
		f.bus,
		f.clock,
		Config{GranularitySlots: 2, CreditRateCents: 100},
	)
	for _, eventType := range []event_bus.EventType{
		event_bus.BookingCreatedType,
		event_bus.BookingCancelledType,
		event_bus.SubscriptionCanceledType,
		event_bus.SubscriptionExpiredType,
	} {
		f.bus.Subscribe(eventType, func(e event_bus.Event) error {
			f.published = append(f.published, e.Type)
			return nil
		})
	}
	return f
}

// givenMembership creates a $100 / 30 day membership for userId that started on 2025-12-22.
func (f *fixture) givenMembership(t *testing.T, userId int, providerId string) subscription.Subscription {
	return f.givenSubscription(t, userId, subscription.PlanMembership, providerId)
}

func (f *fixture) givenSubscription(t *testing.T, userId int, planType subscription.PlanType, providerId string) subscription.Subscription {
	plan, err := f.store.Subscriptions.CreatePlan(ctx, subscription.Plan{
		Name:       "Monthly",
		Type:       planType,
		PriceCents: 10000,
		PeriodDays: 30,
	})
	require.NoError(t, err)
	start := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	sub, err := f.store.Subscriptions.Create(ctx, subscription.Subscription{
		UserId:                 userId,
		PlanId:                 plan.Id,
		Status:                 subscription.StatusActive,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       start.AddDate(0, 0, 30),
		ProviderSubscriptionId: providerId,
	})
	require.NoError(t, err)
	if providerId != "" {
		f.provider.Set(providerId, sub.State())
	}
	return sub
}

func (f *fixture) givenBooking(t *testing.T, studentId int, date time.Time, start, duration int) booking.Booking {
	b, err := f.store.Bookings.Create(ctx, booking.Booking{
		InstructorId:  instructor.Id,
		StudentId:     studentId,
		Date:          date,
		StartSlot:     start,
		Duration:      duration,
		Status:        booking.StatusBooked,
		PaymentMethod: booking.PaymentCard,
		Source:        booking.SourceStudent,
	})
	require.NoError(t, err)
	return b
}

func at(date time.Time, startSlot int) time.Time {
	return date.Add(time.Duration(startSlot) * 15 * time.Minute)
}

func lesson(studentId int, date time.Time, start, duration int, method booking.PaymentMethod) BookingRequest {
	return BookingRequest{
		InstructorId:  instructor.Id,
		StudentId:     studentId,
		Start:         at(date, start),
		End:           at(date, start+duration),
		PaymentMethod: method,
	}
}
