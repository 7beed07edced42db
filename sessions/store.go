// Package sessions issues and stores play-session grants. One settled
// payment buys exactly one time-bounded game session; redeeming a grant
// consumes it.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a grant does not exist, was already redeemed,
// or has expired.
var ErrNotFound = errors.New("sessions: grant not found")

// Grant is one paid play session.
type Grant struct {
	// Token is the opaque session identifier handed to the client.
	Token string `json:"token"`

	// Payer is the address that paid for the session.
	Payer string `json:"payer"`

	// Resource is the game the session is valid for.
	Resource string `json:"resource"`

	// Transaction is the settlement transaction hash.
	Transaction string `json:"transaction"`

	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the grant is no longer usable at the given time.
func (g Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Store persists play-session grants.
type Store interface {
	// Put stores a grant until its expiry.
	Put(ctx context.Context, grant Grant) error

	// Get returns a live grant without consuming it.
	Get(ctx context.Context, token string) (Grant, error)

	// Redeem returns a live grant and consumes it, so a token cannot start
	// two games.
	Redeem(ctx context.Context, token string) (Grant, error)
}

// NewToken generates a random session token.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// MemoryStore is an in-process Store for tests and single-node deployments.
// Expired grants are dropped lazily on access.
type MemoryStore struct {
	mu     sync.Mutex
	grants map[string]Grant
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[string]Grant),
		now:    time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant.Token] = grant
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(token, false)
}

func (s *MemoryStore) Redeem(_ context.Context, token string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(token, true)
}

func (s *MemoryStore) liveLocked(token string, consume bool) (Grant, error) {
	grant, ok := s.grants[token]
	if !ok {
		return Grant{}, ErrNotFound
	}
	if grant.Expired(s.now()) {
		delete(s.grants, token)
		return Grant{}, ErrNotFound
	}
	if consume {
		delete(s.grants, token)
	}
	return grant, nil
}
