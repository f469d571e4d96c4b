package recurring

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/internal/database"
)

var (
	ErrNotFound      = errors.New("recurring booking not found")
	ErrAlreadyExists = errors.New("subscription already has a recurring booking")
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	Get(ctx context.Context, id int) (RecurringBooking, error)
	GetBySubscription(ctx context.Context, subscriptionId int) (RecurringBooking, error)
	ListByInstructor(ctx context.Context, instructorId int) ([]RecurringBooking, error)
	ListByInstructorDay(ctx context.Context, instructorId int, dayOfWeek int) ([]RecurringBooking, error)
	// Create fails with ErrAlreadyExists when the subscription already holds one.
	Create(ctx context.Context, rb RecurringBooking) (RecurringBooking, error)
	Update(ctx context.Context, rb RecurringBooking) (RecurringBooking, error)
	// DeleteBySubscription reports whether a row was removed.
	DeleteBySubscription(ctx context.Context, subscriptionId int) (bool, error)
}

const selectRecurring = `SELECT r.id, r.subscription_id, r.instructor_id, s.user_id, r.day_of_week, r.start_slot,
       r.duration, r.created_at
FROM recurring_booking r
JOIN subscription s ON s.id = r.subscription_id`

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

// NewTxRepo binds a repository to a transaction opened by the caller.
func NewTxRepo(tx pgx.Tx) Repository {
	return &repositoryImpl{tx: tx}
}

func (r *repositoryImpl) getQueryer() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&repositoryImpl{db: r.db, tx: tx})
	})
}

func scanRecurring(row pgx.Row) (RecurringBooking, error) {
	var rb RecurringBooking
	err := row.Scan(&rb.Id, &rb.SubscriptionId, &rb.InstructorId, &rb.OwnerId, &rb.DayOfWeek, &rb.StartSlot,
		&rb.Duration, &rb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecurringBooking{}, ErrNotFound
		}
		return RecurringBooking{}, err
	}
	return rb, nil
}

func (r *repositoryImpl) list(ctx context.Context, query string, args ...any) ([]RecurringBooking, error) {
	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RecurringBooking
	for rows.Next() {
		rb, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rb)
	}
	return result, rows.Err()
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (RecurringBooking, error) {
	return scanRecurring(r.getQueryer().QueryRow(ctx, selectRecurring+` WHERE r.id = $1`, id))
}

func (r *repositoryImpl) GetBySubscription(ctx context.Context, subscriptionId int) (RecurringBooking, error) {
	return scanRecurring(r.getQueryer().QueryRow(ctx, selectRecurring+` WHERE r.subscription_id = $1`, subscriptionId))
}

func (r *repositoryImpl) ListByInstructor(ctx context.Context, instructorId int) ([]RecurringBooking, error) {
	return r.list(ctx, selectRecurring+` WHERE r.instructor_id = $1 ORDER BY r.day_of_week, r.start_slot`, instructorId)
}

func (r *repositoryImpl) ListByInstructorDay(ctx context.Context, instructorId int, dayOfWeek int) ([]RecurringBooking, error) {
	return r.list(ctx, selectRecurring+` WHERE r.instructor_id = $1 AND r.day_of_week = $2 ORDER BY r.start_slot`,
		instructorId, dayOfWeek)
}

func (r *repositoryImpl) Create(ctx context.Context, rb RecurringBooking) (RecurringBooking, error) {
	query := `INSERT INTO recurring_booking (subscription_id, instructor_id, day_of_week, start_slot, duration)
			  VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var id int
	err := r.getQueryer().QueryRow(ctx, query, rb.SubscriptionId, rb.InstructorId, rb.DayOfWeek, rb.StartSlot, rb.Duration).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return RecurringBooking{}, ErrAlreadyExists
		}
		return RecurringBooking{}, err
	}
	return r.Get(ctx, id)
}

func (r *repositoryImpl) Update(ctx context.Context, rb RecurringBooking) (RecurringBooking, error) {
	query := `UPDATE recurring_booking SET instructor_id = $2, day_of_week = $3, start_slot = $4, duration = $5
			  WHERE id = $1`
	result, err := r.getQueryer().Exec(ctx, query, rb.Id, rb.InstructorId, rb.DayOfWeek, rb.StartSlot, rb.Duration)
	if err != nil {
		return RecurringBooking{}, err
	}
	if result.RowsAffected() == 0 {
		return RecurringBooking{}, ErrNotFound
	}
	return r.Get(ctx, rb.Id)
}

func (r *repositoryImpl) DeleteBySubscription(ctx context.Context, subscriptionId int) (bool, error) {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM recurring_booking WHERE subscription_id = $1`, subscriptionId)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
