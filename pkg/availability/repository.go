package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/database"
)

var ErrBlockedIntervalNotFound = errors.New("blocked interval not found")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	GetWindows(ctx context.Context, instructorId int) ([]Window, error)
	DeleteWindows(ctx context.Context, instructorId int) (int, error)
	InsertWindows(ctx context.Context, instructorId int, windows []Window) ([]Window, error)
	CreateBlocked(ctx context.Context, blocked BlockedInterval) (BlockedInterval, error)
	DeleteBlocked(ctx context.Context, instructorId int, id int) error
	// ListBlocked returns intervals intersecting [from, to), ordered by start.
	ListBlocked(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]BlockedInterval, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
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

func (r *repositoryImpl) GetWindows(ctx context.Context, instructorId int) ([]Window, error) {
	query := `SELECT id, instructor_id, day_of_week, start_slot, duration
			  FROM availability_window
			  WHERE instructor_id = $1
			  ORDER BY day_of_week, start_slot`
	rows, err := r.getQueryer().Query(ctx, query, instructorId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.Id, &w.InstructorId, &w.DayOfWeek, &w.StartSlot, &w.Duration); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (r *repositoryImpl) DeleteWindows(ctx context.Context, instructorId int) (int, error) {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM availability_window WHERE instructor_id = $1`, instructorId)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func (r *repositoryImpl) InsertWindows(ctx context.Context, instructorId int, windows []Window) ([]Window, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	query := `INSERT INTO availability_window (instructor_id, day_of_week, start_slot, duration)
			  VALUES ($1, $2, $3, $4) RETURNING id`
	for _, w := range windows {
		batch.Queue(query, instructorId, w.DayOfWeek, w.StartSlot, w.Duration)
	}

	var results pgx.BatchResults
	if r.tx != nil {
		results = r.tx.SendBatch(ctx, batch)
	} else {
		results = r.db.SendBatch(ctx, batch)
	}
	defer results.Close()

	created := make([]Window, 0, len(windows))
	for _, w := range windows {
		if err := results.QueryRow().Scan(&w.Id); err != nil {
			log.Errorf("failed to insert availability window: %v", err)
			return nil, fmt.Errorf("insert availability window: %w", err)
		}
		w.InstructorId = instructorId
		created = append(created, w)
	}
	return created, nil
}

func (r *repositoryImpl) CreateBlocked(ctx context.Context, blocked BlockedInterval) (BlockedInterval, error) {
	query := `INSERT INTO blocked_interval (instructor_id, start_time, end_time, reason)
			  VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, blocked.InstructorId, blocked.Start, blocked.End, blocked.Reason).Scan(&blocked.Id)
	if err != nil {
		return BlockedInterval{}, err
	}
	return blocked, nil
}

func (r *repositoryImpl) DeleteBlocked(ctx context.Context, instructorId int, id int) error {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM blocked_interval WHERE instructor_id = $1 AND id = $2`, instructorId, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBlockedIntervalNotFound
	}
	return nil
}

func (r *repositoryImpl) ListBlocked(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]BlockedInterval, error) {
	query := `SELECT id, instructor_id, start_time, end_time, reason
			  FROM blocked_interval
			  WHERE instructor_id = $1 AND start_time < $3 AND end_time > $2
			  ORDER BY start_time`
	rows, err := r.getQueryer().Query(ctx, query, instructorId, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []BlockedInterval
	for rows.Next() {
		var b BlockedInterval
		if err := rows.Scan(&b.Id, &b.InstructorId, &b.Start, &b.End, &b.Reason); err != nil {
			return nil, err
		}
		b.Start = b.Start.UTC()
		b.End = b.End.UTC()
		intervals = append(intervals, b)
	}
	return intervals, rows.Err()
}
