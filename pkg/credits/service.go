package credits

import (
	"context"
	"fmt"
)

type Service interface {
	Balance(ctx context.Context, userId int) (int, error)
	History(ctx context.Context, userId int) ([]Transaction, error)
	// Adjust applies a manual correction; negative amounts must be covered by the balance.
	Adjust(ctx context.Context, userId int, delta int) (int, error)
}

type ServiceImpl struct {
	repo Repository
}

func NewService(repo Repository) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) Balance(ctx context.Context, userId int) (int, error) {
	return s.repo.Balance(ctx, userId)
}

func (s *ServiceImpl) History(ctx context.Context, userId int) ([]Transaction, error) {
	return s.repo.List(ctx, userId)
}

func (s *ServiceImpl) Adjust(ctx context.Context, userId int, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("adjustment must not be zero")
	}
	return s.repo.Apply(ctx, Transaction{UserId: userId, Delta: delta, Reason: ReasonManualAdjustment})
}
