// Package idempotency remembers relayed responses by client-supplied key so a
// retried create-meetup or post-root call is answered without reaching the node twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Entry is a relayed response as the caller saw it. BodyHash fingerprints the
// request payload that produced it, so a key reused with another payload is caught.
type Entry struct {
	StatusCode int    `json:"status_code"`
	BodyHash   string `json:"body_hash"`
	Body       []byte `json:"body"`
}

// Fingerprint is the hex SHA-256 of a request payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type Store interface {
	Get(ctx context.Context, scope, key string) (Entry, bool, error)
	Claim(ctx context.Context, scope, key, owner string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, scope, key string, entry Entry, ttl time.Duration) error
	Release(ctx context.Context, scope, key, owner string) error
}

const (
	defaultClaimTTL = 30 * time.Second
	defaultEntryTTL = 24 * time.Hour
)

func compoundKey(scope, key string) (string, error) {
	scope = strings.TrimSpace(scope)
	key = strings.TrimSpace(key)
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if key == "" {
		return "", errors.New("key is required")
	}
	sum := sha256.Sum256([]byte(scope + "|" + key))
	return scope + ":" + hex.EncodeToString(sum[:]), nil
}

func requireOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", errors.New("owner is required")
	}
	return owner, nil
}
