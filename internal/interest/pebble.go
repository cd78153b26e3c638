package interest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

var pebbleDocumentKey = []byte("hashed-interests")

// PebbleBackend keeps the whole document under one key of an embedded pebble DB.
type PebbleBackend struct {
	db *pebble.DB
}

func NewPebbleBackend(dir string) (*PebbleBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("pebble directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleBackend{db: db}, nil
}

func (b *PebbleBackend) Load(ctx context.Context) (Document, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	value, closer, err := b.db.Get(pebbleDocumentKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	return decodeDocument(value)
}

func (b *PebbleBackend) Save(ctx context.Context, doc Document) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := b.db.Set(pebbleDocumentKey, raw, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (b *PebbleBackend) Close() error {
	return b.db.Close()
}
