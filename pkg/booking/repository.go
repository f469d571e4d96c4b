package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/internal/database"
)

var ErrBookingNotFound = errors.New("booking not found")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	Create(ctx context.Context, b Booking) (Booking, error)
	Get(ctx context.Context, id int) (Booking, error)
	// ListBooked returns active bookings of the instructor on the given UTC date.
	ListBooked(ctx context.Context, instructorId int, date time.Time) ([]Booking, error)
	// ListBookedFrom returns active bookings of the instructor on or after the given UTC date.
	ListBookedFrom(ctx context.Context, instructorId int, from time.Time) ([]Booking, error)
	// ListByInstructor returns booked and completed bookings with date in [from, to).
	ListByInstructor(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]Booking, error)
	UpdateStatus(ctx context.Context, id int, status Status) (Booking, error)
	Reschedule(ctx context.Context, id int, date time.Time, startSlot int, duration int) (Booking, error)
}

const bookingColumns = `id, uid::text, instructor_id, student_id, date, start_slot, duration, status,
	payment_method, source, credits_charged, created_at`

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

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.Id,
		&b.Uid,
		&b.InstructorId,
		&b.StudentId,
		&b.Date,
		&b.StartSlot,
		&b.Duration,
		&b.Status,
		&b.PaymentMethod,
		&b.Source,
		&b.CreditsCharged,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, err
	}
	b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	return b, nil
}

func (r *repositoryImpl) list(ctx context.Context, query string, args ...any) ([]Booking, error) {
	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// Create assigns a uid when b has none.
func (r *repositoryImpl) Create(ctx context.Context, b Booking) (Booking, error) {
	if b.Uid == "" {
		b.Uid = uuid.NewString()
	}
	query := `INSERT INTO booking (uid, instructor_id, student_id, date, start_slot, duration, status,
                     payment_method, source, credits_charged)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING ` + bookingColumns
	return scanBooking(r.getQueryer().QueryRow(ctx, query,
		b.Uid, b.InstructorId, b.StudentId, b.Date, b.StartSlot, b.Duration, b.Status,
		b.PaymentMethod, b.Source, b.CreditsCharged))
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking WHERE id = $1`
	return scanBooking(r.getQueryer().QueryRow(ctx, query, id))
}

func (r *repositoryImpl) ListBooked(ctx context.Context, instructorId int, date time.Time) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking
			  WHERE instructor_id = $1 AND date = $2 AND status = 'booked'
			  ORDER BY start_slot`
	return r.list(ctx, query, instructorId, date)
}

func (r *repositoryImpl) ListBookedFrom(ctx context.Context, instructorId int, from time.Time) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking
			  WHERE instructor_id = $1 AND date >= $2 AND status = 'booked'
			  ORDER BY date, start_slot`
	return r.list(ctx, query, instructorId, from)
}

func (r *repositoryImpl) ListByInstructor(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking
			  WHERE instructor_id = $1 AND date >= $2 AND date < $3 AND status <> 'cancelled'
			  ORDER BY date, start_slot`
	return r.list(ctx, query, instructorId, from, to)
}

func (r *repositoryImpl) UpdateStatus(ctx context.Context, id int, status Status) (Booking, error) {
	query := `UPDATE booking SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + bookingColumns
	return scanBooking(r.getQueryer().QueryRow(ctx, query, id, status))
}

func (r *repositoryImpl) Reschedule(ctx context.Context, id int, date time.Time, startSlot int, duration int) (Booking, error) {
	query := `UPDATE booking SET date = $2, start_slot = $3, duration = $4, updated_at = now()
			  WHERE id = $1 RETURNING ` + bookingColumns
	return scanBooking(r.getQueryer().QueryRow(ctx, query, id, date, startSlot, duration))
}
