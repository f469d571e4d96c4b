package scheduling

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/internal/database"
	"github.com/tutorhub/tutorhub/pkg/audit"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/credits"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/subscription"
)

// Repos are the repositories a scheduling operation may touch together.
type Repos struct {
	Bookings      booking.Repository
	Recurring     recurring.Repository
	Credits       credits.Repository
	Audit         audit.Repository
	Subscriptions subscription.Repository
}

type Store interface {
	// Repos returns repositories for reads outside a transaction.
	Repos() Repos
	// Locked runs fn in a single transaction holding an advisory lock for every key.
	// Nothing fn wrote survives when it returns an error.
	Locked(ctx context.Context, keys []string, fn func(r Repos) error) error
}

func bookingLockKey(instructorId int, date time.Time) string {
	return fmt.Sprintf("booking:%d:%s", instructorId, date.Format(time.DateOnly))
}

func recurringLockKey(instructorId int, dayOfWeek int) string {
	return fmt.Sprintf("recurring:%d:%d", instructorId, dayOfWeek)
}

func subscriptionLockKey(subscriptionId int) string {
	return fmt.Sprintf("subscription:%d", subscriptionId)
}

type pgStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Repos() Repos {
	return Repos{
		Bookings:      booking.NewRepo(s.db),
		Recurring:     recurring.NewRepo(s.db),
		Credits:       credits.NewRepo(s.db),
		Audit:         audit.NewRepo(s.db),
		Subscriptions: subscription.NewRepo(s.db),
	}
}

func (s *pgStore) Locked(ctx context.Context, keys []string, fn func(r Repos) error) error {
	// a fixed acquisition order keeps two multi-key callers from deadlocking
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, key := range sorted {
			if err := database.LockKey(ctx, tx, key); err != nil {
				return err
			}
		}
		return fn(Repos{
			Bookings:      booking.NewTxRepo(tx),
			Recurring:     recurring.NewTxRepo(tx),
			Credits:       credits.NewTxRepo(tx),
			Audit:         audit.NewTxRepo(tx),
			Subscriptions: subscription.NewTxRepo(tx),
		})
	})
}

// StubStore runs operations against in-memory repositories, one at a time.
type StubStore struct {
	mu            sync.Mutex
	Bookings      *booking.RepositoryStub
	Recurring     *recurring.RepositoryStub
	Credits       *credits.RepositoryStub
	Audit         *audit.RepositoryStub
	Subscriptions *subscription.RepositoryStub
}

func NewStubStore() *StubStore {
	auditStub := audit.NewRepositoryStub()
	return &StubStore{
		Bookings:      booking.NewRepositoryStub(),
		Recurring:     recurring.NewRepositoryStub(),
		Credits:       credits.NewRepositoryStub(),
		Audit:         auditStub,
		Subscriptions: subscription.NewRepositoryStub().WithAudit(auditStub),
	}
}

func (s *StubStore) Repos() Repos {
	return Repos{
		Bookings:      s.Bookings,
		Recurring:     s.Recurring,
		Credits:       s.Credits,
		Audit:         s.Audit,
		Subscriptions: s.Subscriptions,
	}
}

func (s *StubStore) Locked(ctx context.Context, keys []string, fn func(r Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restores := []func(){
		s.Bookings.Snapshot(),
		s.Recurring.Snapshot(),
		s.Credits.Snapshot(),
		s.Audit.Snapshot(),
		s.Subscriptions.Snapshot(),
	}
	if err := fn(s.Repos()); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

func (s *StubStore) Reset() {
	s.Bookings.Reset()
	s.Recurring.Reset()
	s.Credits.Reset()
	s.Audit.Reset()
	s.Subscriptions.Reset()
}
