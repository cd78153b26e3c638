package interest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ssocolow/zk-hyle/internal/lease"
)

func TestLeaseLockerWaitsForRelease(t *testing.T) {
	locker := NewLeaseLocker(lease.NewInMemoryManager(), time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx)
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		second, err := locker.Lock(ctx)
		if err == nil {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatalf("second writer acquired the lease while it was held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()

	select {
	case second := <-acquired:
		second()
	case <-time.After(time.Second):
		t.Fatalf("second writer never acquired the lease")
	}
}

func TestLeaseLockerHonoursContext(t *testing.T) {
	manager := lease.NewInMemoryManager()
	locker := NewLeaseLocker(manager, time.Second)

	unlock, err := locker.Lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreSurfacesLockFailure(t *testing.T) {
	manager := lease.NewInMemoryManager()
	locker := NewLeaseLocker(manager, time.Second)
	unlock, err := locker.Lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	store := NewStore(&memoryBackend{}, WithLocker(locker))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = store.Merge(ctx, "A", fullRecord("a"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
