package confirm

import (
	"context"
	"sync"
	"time"
)

// Store persists confirm tokens. Implementations must make Consume an
// atomic check-and-consume: under concurrent calls for the same token,
// exactly one succeeds and the rest observe the consumed state. The
// contract is storage-agnostic; the memory store serves single-process
// deployments and tests, the SQLite store survives restarts.
type Store interface {
	// Put stores a freshly minted token.
	Put(ctx context.Context, token *Token) error

	// Get returns a copy of the token, or ErrTokenNotFound.
	Get(ctx context.Context, value string) (*Token, error)

	// Consume atomically validates and consumes a token. It returns the
	// consumed token on success, or one of ErrTokenNotFound,
	// ErrTokenExpired, ErrTokenConsumed, ErrFingerprintMismatch.
	Consume(ctx context.Context, value, fingerprint string, now time.Time) (*Token, error)

	// Purge removes expired and consumed tokens whose expiry predates
	// the cutoff, returning the number removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any backing resources.
	Close() error
}

// memoryEntry wraps a token with its own lock so consuming one token
// never serializes validation of unrelated tokens.
type memoryEntry struct {
	mu    sync.Mutex
	token Token
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	entries sync.Map // token value -> *memoryEntry
}

// NewMemoryStore builds an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Put stores a token.
func (s *MemoryStore) Put(ctx context.Context, token *Token) error {
	s.entries.Store(token.Value, &memoryEntry{token: *token})
	return nil
}

// Get returns a copy of the stored token.
func (s *MemoryStore) Get(ctx context.Context, value string) (*Token, error) {
	v, ok := s.entries.Load(value)
	if !ok {
		return nil, ErrTokenNotFound
	}
	entry := v.(*memoryEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	copied := entry.token
	return &copied, nil
}

// Consume performs the atomic check-and-consume under the entry's own
// lock. Expiry is checked before fingerprint so an attacker probing with
// a stale token learns nothing about fingerprint binding.
func (s *MemoryStore) Consume(ctx context.Context, value, fingerprint string, now time.Time) (*Token, error) {
	v, ok := s.entries.Load(value)
	if !ok {
		return nil, ErrTokenNotFound
	}
	entry := v.(*memoryEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.token.Consumed {
		return nil, ErrTokenConsumed
	}
	if now.After(entry.token.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if entry.token.Fingerprint != fingerprint {
		return nil, ErrFingerprintMismatch
	}

	entry.token.Consumed = true
	entry.token.ConsumedAt = now

	copied := entry.token
	return &copied, nil
}

// Purge drops expired and consumed tokens past the cutoff.
func (s *MemoryStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	s.entries.Range(func(key, v any) bool {
		entry := v.(*memoryEntry)
		entry.mu.Lock()
		stale := entry.token.ExpiresAt.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			s.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
