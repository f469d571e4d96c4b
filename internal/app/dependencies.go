package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/config"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/access"
	"github.com/tutorhub/tutorhub/pkg/audit"
	"github.com/tutorhub/tutorhub/pkg/availability"
	"github.com/tutorhub/tutorhub/pkg/credits"
	"github.com/tutorhub/tutorhub/pkg/google"
	"github.com/tutorhub/tutorhub/pkg/scheduling"
	"github.com/tutorhub/tutorhub/pkg/subscription"
	"github.com/tutorhub/tutorhub/pkg/user"
	"golang.org/x/oauth2/jwt"
)

const availabilityCacheTTL = 10 * time.Minute

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	AvailabilityService *availability.ServiceImpl
	AvailabilityHandler *availability.Handler

	GoogleAuth    *google.Auth
	GoogleAdapter *google.Adapter
	GoogleService *google.ServiceImpl
	GoogleHandler *google.Handler

	CreditsService *credits.ServiceImpl
	CreditsHandler *credits.Handler

	SubscriptionService *subscription.ServiceImpl
	StripeWebhook       *subscription.WebhookHandler

	RecurringManager  *scheduling.RecurringManager
	SchedulingService *scheduling.ServiceImpl
	SchedulingHandler *scheduling.Handler
}

func newCache[T any](rdb *redis.Client, prefix string, ttl time.Duration) cache.Cache[T] {
	if rdb == nil {
		return cache.NewMemory[T](ttl)
	}
	return cache.NewRedis[T](rdb, prefix, ttl)
}

// BuildDependencies initializes and wires all application services and handlers.
// rdb may be nil, in which case caches are kept in process.
func BuildDependencies(db *pgxpool.Pool, rdb *redis.Client, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	clock, err := utils.NewBusinessClock(cfg.Business.Timezone)
	if err != nil {
		return nil, err
	}
	deps.Clock = clock
	deps.EventBus = event_bus.NewEventBus()

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.AvailabilityService = availability.NewService(
		availability.NewRepo(db),
		newCache[[]availability.Window](rdb, cfg.Redis.Prefix+":availability", availabilityCacheTTL),
		deps.EventBus,
		deps.Clock,
	)
	deps.AvailabilityHandler = availability.NewHandler(deps.AvailabilityService)

	policy := google.AllDayPolicy(cfg.Google.AllDayPolicy)
	if !policy.Valid() {
		log.Warnf("unknown all-day policy %q, using %q", cfg.Google.AllDayPolicy, google.AllDayIgnore)
		policy = google.AllDayIgnore
	}
	googleRepo := google.NewRepo(db, policy)
	oauthConfig := google.NewOAuthConfig(cfg)
	var shared *jwt.Config
	if cfg.Google.SharedCredentialsFile != "" {
		shared, err = google.LoadSharedCredentials(cfg.Google.SharedCredentialsFile)
		if err != nil {
			return nil, err
		}
	}
	calendarSource := google.NewCalendarSource(googleRepo, oauthConfig, shared, cfg.Google.Impersonate)
	deps.GoogleAuth = google.NewAuth(googleRepo, oauthConfig, deps.EventBus)
	deps.GoogleAdapter = google.NewAdapter(
		calendarSource,
		googleRepo,
		deps.AvailabilityService,
		newCache[[]google.Block](rdb, cfg.Redis.Prefix+":gcal", cfg.Google.CacheTTL),
		cfg.Google.Timeout,
	)
	deps.GoogleAdapter.Subscribe(deps.EventBus)
	deps.GoogleService = google.NewService(googleRepo, calendarSource, deps.EventBus)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)

	deps.CreditsService = credits.NewService(credits.NewRepo(db))
	deps.CreditsHandler = credits.NewHandler(deps.CreditsService)

	var provider subscription.PaymentProvider
	if cfg.Stripe.SecretKey != "" {
		provider = subscription.NewStripeProvider(cfg.Stripe.SecretKey)
	} else {
		log.Warn("Stripe is not configured, subscriptions are managed locally")
	}
	subscriptionRepo := subscription.NewRepo(db)
	deps.SubscriptionService = subscription.NewService(subscriptionRepo, audit.NewRepo(db), provider, deps.EventBus, deps.Clock)
	deps.StripeWebhook = subscription.NewWebhookHandler(deps.SubscriptionService, subscriptionRepo, cfg.Stripe.WebhookSecret, 0)

	store := scheduling.NewStore(db)
	deps.RecurringManager = scheduling.NewRecurringManager(
		store,
		deps.AvailabilityService,
		deps.SubscriptionService,
		deps.Clock,
		cfg.Booking.GranularitySlots,
	)
	deps.RecurringManager.Subscribe(deps.EventBus)
	deps.SchedulingService = scheduling.NewService(
		store,
		deps.AvailabilityService,
		deps.GoogleAdapter,
		deps.SubscriptionService,
		deps.RecurringManager,
		access.NewPolicy(deps.Clock, cfg.Booking.CancellationWindow),
		deps.EventBus,
		deps.Clock,
		scheduling.Config{
			GranularitySlots: cfg.Booking.GranularitySlots,
			CreditRateCents:  cfg.Credits.RateCents,
		},
	)
	deps.SchedulingHandler = scheduling.NewHandler(deps.SchedulingService, deps.RecurringManager)

	return deps, nil
}
