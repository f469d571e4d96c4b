package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/internal/database"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	Balance(ctx context.Context, userId int) (int, error)
	// Apply records the transaction and moves the balance by its delta. A debit larger than
	// the balance fails with ErrInsufficientCredits and changes nothing.
	Apply(ctx context.Context, t Transaction) (int, error)
	List(ctx context.Context, userId int) ([]Transaction, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

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

func (r *repositoryImpl) Balance(ctx context.Context, userId int) (int, error) {
	var balance int
	err := r.getQueryer().QueryRow(ctx, `SELECT balance FROM credit_balance WHERE user_id = $1`, userId).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (r *repositoryImpl) Apply(ctx context.Context, t Transaction) (int, error) {
	var balance int
	err := r.WithTransaction(ctx, func(repo Repository) error {
		q := repo.(*repositoryImpl).getQueryer()
		var err error
		if t.Delta < 0 {
			err = q.QueryRow(ctx, `UPDATE credit_balance SET balance = balance + $2
				WHERE user_id = $1 AND balance + $2 >= 0 RETURNING balance`, t.UserId, t.Delta).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientCredits
			}
		} else {
			err = q.QueryRow(ctx, `INSERT INTO credit_balance (user_id, balance) VALUES ($1, $2)
				ON CONFLICT (user_id) DO UPDATE SET balance = credit_balance.balance + EXCLUDED.balance
				RETURNING balance`, t.UserId, t.Delta).Scan(&balance)
		}
		if err != nil {
			return fmt.Errorf("update credit balance: %w", err)
		}
		_, err = q.Exec(ctx, `INSERT INTO credit_transaction (user_id, delta, reason, booking_id, subscription_id)
			VALUES ($1, $2, $3, $4, $5)`, t.UserId, t.Delta, t.Reason, nullableId(t.BookingId), nullableId(t.SubscriptionId))
		if err != nil {
			return fmt.Errorf("insert credit transaction: %w", err)
		}
		return nil
	})
	return balance, err
}

func (r *repositoryImpl) List(ctx context.Context, userId int) ([]Transaction, error) {
	query := `SELECT id, user_id, delta, reason, COALESCE(booking_id, 0), COALESCE(subscription_id, 0), created_at
			  FROM credit_transaction WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.getQueryer().Query(ctx, query, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.Id, &t.UserId, &t.Delta, &t.Reason, &t.BookingId, &t.SubscriptionId, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func nullableId(id int) any {
	if id == 0 {
		return nil
	}
	return id
}
