package interest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssocolow/zk-hyle/internal/lease"
)

// Locker is the single-writer serialization point for the document.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MutexLocker serializes writers inside this process.
type MutexLocker struct {
	mu sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

func (l *MutexLocker) Lock(_ context.Context) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

const (
	leaseResource     = "hashed-interests"
	defaultLeasePoll  = 25 * time.Millisecond
	defaultLeaseTTL   = 10 * time.Second
	leaseReleaseLimit = 2 * time.Second
)

// LeaseLocker serializes writers across processes that share a lease.Manager.
// The TTL bounds how long a crashed writer blocks the others.
type LeaseLocker struct {
	manager lease.Manager
	ttl     time.Duration
	poll    time.Duration
}

func NewLeaseLocker(manager lease.Manager, ttl time.Duration) *LeaseLocker {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &LeaseLocker{manager: manager, ttl: ttl, poll: defaultLeasePoll}
}

func (l *LeaseLocker) Lock(ctx context.Context) (func(), error) {
	if l.manager == nil {
		return nil, errors.New("lease manager is required")
	}
	holder := "writer-" + uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		held, ok, err := l.manager.Acquire(ctx, leaseResource, holder, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), leaseReleaseLimit)
				defer cancel()
				if err := l.manager.Release(releaseCtx, leaseResource, holder, held.Token); err != nil {
					log.Warnw("failed to release interest writer lease", "holder", holder, "err", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
