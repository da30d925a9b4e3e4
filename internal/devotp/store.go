// Package devotp keeps the latest plaintext OTP per user so local clients can
// read it back (GET /dev/otp/{userId}). Only wired when dev OTP mode is on
// outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain OTP by user id for dev-only retrieval. Not used in production.
type Store interface {
	// Put records otp as the latest code issued to userID until expiresAt.
	Put(ctx context.Context, userID, otp string, expiresAt time.Time)
	// Get returns the latest otp for userID if present and not expired.
	Get(ctx context.Context, userID string) (otp string, ok bool)
	// Delete forgets the otp for userID, e.g. once it has been consumed.
	Delete(ctx context.Context, userID string)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Put stores otp for userID until expiresAt, replacing any earlier code.
func (s *MemoryStore) Put(ctx context.Context, userID, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for userID if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(ctx context.Context, userID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[userID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.Delete(ctx, userID)
		return "", false
	}
	return e.otp, true
}

// Delete removes the entry for userID.
func (s *MemoryStore) Delete(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
