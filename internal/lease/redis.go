package lease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisManager excludes holders across every gateway process sharing one Redis.
type RedisManager struct {
	client redis.Cmdable
	prefix string
}

func NewRedisManager(client redis.Cmdable, prefix string) *RedisManager {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "zkhyle:lease"
	}
	return &RedisManager{client: client, prefix: normalized}
}

func (m *RedisManager) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (Lease, bool, error) {
	resource, holder, err := normalize(resource, holder)
	if err != nil {
		return Lease{}, false, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	token, err := m.client.Incr(ctx, m.prefix+":seq:"+resource).Uint64()
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease token: %w", err)
	}
	acquired, err := m.client.SetNX(ctx, m.holdKey(resource), holdValue(holder, token), ttl).Result()
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease acquire: %w", err)
	}
	if !acquired {
		return Lease{}, false, nil
	}
	return Lease{Token: token, ExpiresAt: time.Now().UTC().Add(ttl)}, true, nil
}

func (m *RedisManager) Release(ctx context.Context, resource, holder string, token uint64) error {
	resource, holder, err := normalize(resource, holder)
	if err != nil {
		return err
	}
	if token == 0 {
		return errors.New("token is required")
	}
	_, err = releaseScript.Run(ctx, m.client, []string{m.holdKey(resource)}, holdValue(holder, token)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

func (m *RedisManager) holdKey(resource string) string {
	return m.prefix + ":hold:" + resource
}

func holdValue(holder string, token uint64) string {
	return fmt.Sprintf("%s|%d", holder, token)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
