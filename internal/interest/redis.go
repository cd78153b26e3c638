package interest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the whole document under a single key.
type RedisBackend struct {
	client redis.Cmdable
	key    string
}

func NewRedisBackend(client redis.Cmdable, key string) *RedisBackend {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "zkhyle:hashed-interests"
	}
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) Load(ctx context.Context) (Document, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", b.key, err)
	}
	return decodeDocument(raw)
}

func (b *RedisBackend) Save(ctx context.Context, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", b.key, err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (b *RedisBackend) Close() error {
	return nil
}
