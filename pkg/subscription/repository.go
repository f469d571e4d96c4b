package subscription

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/internal/database"
	"github.com/tutorhub/tutorhub/pkg/audit"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type Repository interface {
	// WithTransaction hands fn a subscription and an audit repository sharing one transaction.
	WithTransaction(ctx context.Context, fn func(repo Repository, auditRepo audit.Repository) error) error
	Get(ctx context.Context, id int) (Subscription, error)
	GetByProviderId(ctx context.Context, providerSubscriptionId string) (Subscription, error)
	ListByUser(ctx context.Context, userId int) ([]Subscription, error)
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	Create(ctx context.Context, sub Subscription) (Subscription, error)
	UpdateState(ctx context.Context, id int, state State) (Subscription, error)
}

const selectSubscription = `SELECT s.id, s.user_id, s.plan_id, p.name, p.type, p.price_cents, p.period_days,
       s.status, s.current_period_start, s.current_period_end, s.cancel_at_period_end, s.provider_subscription_id
FROM subscription s
JOIN plan p ON p.id = s.plan_id`

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

func (r *repositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository, auditRepo audit.Repository) error) error {
	if r.tx != nil {
		return fn(r, audit.NewTxRepo(r.tx))
	}
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&repositoryImpl{db: r.db, tx: tx}, audit.NewTxRepo(tx))
	})
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.Id,
		&s.UserId,
		&s.PlanId,
		&s.Plan.Name,
		&s.Plan.Type,
		&s.Plan.PriceCents,
		&s.Plan.PeriodDays,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.ProviderSubscriptionId,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, ErrSubscriptionNotFound
		}
		return Subscription{}, err
	}
	s.Plan.Id = s.PlanId
	s.CurrentPeriodStart = s.CurrentPeriodStart.UTC()
	s.CurrentPeriodEnd = s.CurrentPeriodEnd.UTC()
	return s, nil
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (Subscription, error) {
	return scanSubscription(r.getQueryer().QueryRow(ctx, selectSubscription+` WHERE s.id = $1`, id))
}

func (r *repositoryImpl) GetByProviderId(ctx context.Context, providerSubscriptionId string) (Subscription, error) {
	if providerSubscriptionId == "" {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return scanSubscription(r.getQueryer().QueryRow(ctx, selectSubscription+` WHERE s.provider_subscription_id = $1`, providerSubscriptionId))
}

func (r *repositoryImpl) ListByUser(ctx context.Context, userId int) ([]Subscription, error) {
	rows, err := r.getQueryer().Query(ctx, selectSubscription+` WHERE s.user_id = $1 ORDER BY s.id`, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *repositoryImpl) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	query := `INSERT INTO plan (name, type, price_cents, period_days) VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, plan.Name, plan.Type, plan.PriceCents, plan.PeriodDays).Scan(&plan.Id)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (r *repositoryImpl) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	query := `INSERT INTO subscription (user_id, plan_id, status, current_period_start, current_period_end,
                          cancel_at_period_end, provider_subscription_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	var id int
	err := r.getQueryer().QueryRow(ctx, query, sub.UserId, sub.PlanId, sub.Status, sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.ProviderSubscriptionId).Scan(&id)
	if err != nil {
		return Subscription{}, err
	}
	return r.Get(ctx, id)
}

func (r *repositoryImpl) UpdateState(ctx context.Context, id int, state State) (Subscription, error) {
	query := `UPDATE subscription
			  SET status = $2, cancel_at_period_end = $3, current_period_start = $4, current_period_end = $5,
			      updated_at = now()
			  WHERE id = $1`
	result, err := r.getQueryer().Exec(ctx, query, id, state.Status, state.CancelAtPeriodEnd, state.PeriodStart, state.PeriodEnd)
	if err != nil {
		return Subscription{}, err
	}
	if result.RowsAffected() == 0 {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return r.Get(ctx, id)
}
