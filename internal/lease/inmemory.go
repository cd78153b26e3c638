package lease

import (
	"context"
	"errors"
	"sync"
	"time"
)

type hold struct {
	holder    string
	token     uint64
	expiresAt time.Time
}

// InMemoryManager only excludes holders inside one process.
type InMemoryManager struct {
	mu    sync.Mutex
	seq   uint64
	holds map[string]hold
}

func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{holds: make(map[string]hold)}
}

func (m *InMemoryManager) Acquire(_ context.Context, resource, holder string, ttl time.Duration) (Lease, bool, error) {
	resource, holder, err := normalize(resource, holder)
	if err != nil {
		return Lease{}, false, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.holds[resource]; ok && now.Before(current.expiresAt) {
		return Lease{}, false, nil
	}
	m.seq++
	granted := Lease{Token: m.seq, ExpiresAt: now.Add(ttl)}
	m.holds[resource] = hold{holder: holder, token: granted.Token, expiresAt: granted.ExpiresAt}
	return granted, true, nil
}

// Release is a no-op unless holder and token match the current hold.
func (m *InMemoryManager) Release(_ context.Context, resource, holder string, token uint64) error {
	resource, holder, err := normalize(resource, holder)
	if err != nil {
		return err
	}
	if token == 0 {
		return errors.New("token is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.holds[resource]; ok && current.holder == holder && current.token == token {
		delete(m.holds, resource)
	}
	return nil
}
