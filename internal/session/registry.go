// Package session keeps one store per browser session.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"storefront/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrTooManySessions = errors.New("session limit reached")
)

// Session ties an opaque token to the store serving that browser session.
type Session struct {
	ID        string
	Token     string
	Store     *store.Store
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Factory builds the store for a new session.
type Factory func() *store.Store

type Registry struct {
	factory Factory
	ttl     time.Duration
	logger  *log.Logger
	now     func() time.Time
	limit   int

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(factory Factory, ttl time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// SetLimit caps the number of live sessions. n <= 0 removes the cap.
func (r *Registry) SetLimit(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

// Issue creates a session with a fresh store. When the registry is at its
// limit expired sessions are dropped first, and ErrTooManySessions is returned
// if it is still full.
func (r *Registry) Issue(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.sessions) >= r.limit {
		r.sweepLocked(now)
		if len(r.sessions) >= r.limit {
			r.logger.Printf("session: limit reached count=%d", len(r.sessions))
			return nil, ErrTooManySessions
		}
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		Store:     r.factory(),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.sessions[token] = sess
	r.logger.Printf("session: issued id=%s", sess.ID)
	return sess, nil
}

// Lookup returns the session for token and extends its expiry.
func (r *Registry) Lookup(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	now := r.now()
	if now.After(sess.ExpiresAt) {
		delete(r.sessions, token)
		r.logger.Printf("session: expired id=%s", sess.ID)
		return nil, ErrInvalidToken
	}
	sess.ExpiresAt = now.Add(r.ttl)
	return sess, nil
}

func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	sess, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()
	if ok {
		r.logger.Printf("session: revoked id=%s", sess.ID)
	}
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

func (r *Registry) sweepLocked(now time.Time) int {
	removed := 0
	for token, sess := range r.sessions {
		if now.After(sess.ExpiresAt) {
			delete(r.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Printf("session: swept count=%d", removed)
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) TTLSeconds() int {
	return int(r.ttl.Seconds())
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
