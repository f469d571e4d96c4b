package google

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

type RepositoryStub struct {
	mu       sync.RWMutex
	nonces   map[string]int
	tokens   map[int]*oauth2.Token
	settings map[int]Settings
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		nonces:   make(map[string]int),
		tokens:   make(map[int]*oauth2.Token),
		settings: make(map[int]Settings),
	}
}

func (r *RepositoryStub) SaveNonce(ctx context.Context, instructorId int, nonce string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, id := range r.nonces {
		if id == instructorId {
			delete(r.nonces, n)
		}
	}
	delete(r.tokens, instructorId)
	r.nonces[nonce] = instructorId
	return nil
}

func (r *RepositoryStub) SaveToken(ctx context.Context, nonce string, token *oauth2.Token) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.nonces[nonce]
	if !ok {
		return 0, ErrUnknownNonce
	}
	r.tokens[id] = token
	return id, nil
}

func (r *RepositoryStub) GetToken(ctx context.Context, instructorId int) (*oauth2.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[instructorId], nil
}

func (r *RepositoryStub) DeleteToken(ctx context.Context, instructorId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, instructorId)
	for n, id := range r.nonces {
		if id == instructorId {
			delete(r.nonces, n)
		}
	}
	return nil
}

func (r *RepositoryStub) GetSettings(ctx context.Context, instructorId int) (Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.settings[instructorId]; ok {
		return s, nil
	}
	return Settings{InstructorId: instructorId, CalendarId: "primary", AllDayPolicy: AllDayIgnore}, nil
}

func (r *RepositoryStub) SaveSettings(ctx context.Context, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.InstructorId] = settings
	return nil
}
