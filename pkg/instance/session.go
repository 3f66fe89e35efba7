package instance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Session is an authenticated login, mapping an opaque token to the user
// identity (a key name in the Users database) it was issued for.
type Session struct {
	Token     string
	UserKey   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore is an in-memory token -> Session map supporting
// generate/validate/revoke and cleanup of expired sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create issues a new session for userKey, valid for ttl.
func (s *SessionStore) Create(userKey string, ttl time.Duration) (*Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("instance: generate session token: %w", err)
	}
	sess := &Session{
		Token:     hex.EncodeToString(raw),
		UserKey:   userKey,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Validate returns the session for token if it exists and has not
// expired.
func (s *SessionStore) Validate(token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("instance: invalid session token")
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, fmt.Errorf("instance: session expired")
	}
	return sess, nil
}

// Revoke invalidates token immediately.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CleanupExpired removes every session past its expiry, for a caller to
// run periodically.
func (s *SessionStore) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
}

// List returns every stored session, including expired ones that
// CleanupExpired has not yet removed.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
