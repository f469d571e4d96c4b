package credits

import (
	"context"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu           sync.RWMutex
	balances     map[int]int
	transactions []Transaction
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{balances: make(map[int]int)}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	restore := r.Snapshot()
	if err := fn(r); err != nil {
		restore()
		return err
	}
	return nil
}

// Snapshot captures the current state and returns a function restoring it.
func (r *RepositoryStub) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	balances := make(map[int]int, len(r.balances))
	for k, v := range r.balances {
		balances[k] = v
	}
	transactions := append([]Transaction(nil), r.transactions...)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.balances = balances
		r.transactions = transactions
	}
}

func (r *RepositoryStub) Balance(ctx context.Context, userId int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[userId], nil
}

func (r *RepositoryStub) Apply(ctx context.Context, t Transaction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances[t.UserId]+t.Delta < 0 {
		return r.balances[t.UserId], ErrInsufficientCredits
	}
	r.balances[t.UserId] += t.Delta
	t.Id = len(r.transactions) + 1
	t.CreatedAt = time.Now()
	r.transactions = append(r.transactions, t)
	return r.balances[t.UserId], nil
}

func (r *RepositoryStub) List(ctx context.Context, userId int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Transaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if r.transactions[i].UserId == userId {
			result = append(result, r.transactions[i])
		}
	}
	return result, nil
}

// SetBalance seeds a balance without a ledger entry
func (r *RepositoryStub) SetBalance(userId int, balance int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userId] = balance
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances = make(map[int]int)
	r.transactions = nil
}
