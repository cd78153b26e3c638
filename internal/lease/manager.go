// Package lease grants exclusive, expiring holds on named resources.
// The interest store uses it as its cross-process single-writer lock.
package lease

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultTTL = 10 * time.Second

// Lease is a granted hold. Token increases monotonically per resource.
type Lease struct {
	Token     uint64
	ExpiresAt time.Time
}

type Manager interface {
	Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (Lease, bool, error)
	Release(ctx context.Context, resource, holder string, token uint64) error
}

func normalize(resource, holder string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" {
		return "", "", errors.New("resource is required")
	}
	if holder == "" {
		return "", "", errors.New("holder is required")
	}
	return resource, holder, nil
}
