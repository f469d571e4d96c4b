package subscription

import (
	"context"
	"errors"
	"sync"
)

// ProviderStub is an in-memory PaymentProvider.
type ProviderStub struct {
	mu        sync.Mutex
	states    map[string]State
	cancelErr error
	getErr    error
	// CancelKeys records the idempotency keys of successful Cancel calls.
	CancelKeys []string
}

func NewProviderStub() *ProviderStub {
	return &ProviderStub{states: make(map[string]State)}
}

func (p *ProviderStub) Set(providerSubscriptionId string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[providerSubscriptionId] = state
}

func (p *ProviderStub) SetCancelError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelErr = err
}

func (p *ProviderStub) SetGetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getErr = err
}

func (p *ProviderStub) Get(ctx context.Context, providerSubscriptionId string) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return State{}, p.getErr
	}
	state, ok := p.states[providerSubscriptionId]
	if !ok {
		return State{}, errors.New("no such subscription")
	}
	return state, nil
}

func (p *ProviderStub) Cancel(ctx context.Context, providerSubscriptionId string, idempotencyKey string) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return State{}, p.cancelErr
	}
	state, ok := p.states[providerSubscriptionId]
	if !ok {
		return State{}, errors.New("no such subscription")
	}
	state.Status = StatusCanceled
	p.states[providerSubscriptionId] = state
	p.CancelKeys = append(p.CancelKeys, idempotencyKey)
	return state, nil
}

func (p *ProviderStub) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = make(map[string]State)
	p.cancelErr = nil
	p.getErr = nil
	p.CancelKeys = nil
}
