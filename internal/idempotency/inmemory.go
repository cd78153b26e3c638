package idempotency

import (
	"context"
	"sync"
	"time"
)

type storedEntry struct {
	entry     Entry
	expiresAt time.Time
}

type claim struct {
	owner     string
	expiresAt time.Time
}

type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]storedEntry
	claims  map[string]claim
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]storedEntry),
		claims:  make(map[string]claim),
	}
}

func (s *InMemoryStore) Get(_ context.Context, scope, key string) (Entry, bool, error) {
	compound, err := compoundKey(scope, key)
	if err != nil {
		return Entry{}, false, err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[compound]
	if !ok {
		return Entry{}, false, nil
	}
	if now.After(stored.expiresAt) {
		delete(s.entries, compound)
		return Entry{}, false, nil
	}
	out := stored.entry
	out.Body = append([]byte(nil), out.Body...)
	return out, true, nil
}

func (s *InMemoryStore) Claim(_ context.Context, scope, key, owner string, ttl time.Duration) (bool, error) {
	compound, err := compoundKey(scope, key)
	if err != nil {
		return false, err
	}
	if owner, err = requireOwner(owner); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.claims[compound]; ok && now.Before(existing.expiresAt) {
		return false, nil
	}
	s.claims[compound] = claim{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) Save(_ context.Context, scope, key string, entry Entry, ttl time.Duration) error {
	compound, err := compoundKey(scope, key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}

	entry.Body = append([]byte(nil), entry.Body...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[compound] = storedEntry{entry: entry, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, scope, key, owner string) error {
	compound, err := compoundKey(scope, key)
	if err != nil {
		return err
	}
	if owner, err = requireOwner(owner); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.claims[compound]; ok && existing.owner == owner {
		delete(s.claims, compound)
	}
	return nil
}
