// Package interest persists per-address hashed interests as one durable document.
//
// Every Merge loads the whole document, updates one record and writes the whole
// document back. Without a Locker two concurrent merges can both read before
// either writes, and the later write wins. Configure a Locker to serialize writers.
package interest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("gateway/interest")

// Fields are the hashed interest names a record accepts.
var Fields = []string{"m1", "m2", "m3", "m4"}

var (
	ErrMissingAddress = errors.New("address is required")
	ErrUnknownField   = errors.New("unknown hashed interest field")
)

// Record maps a field name to its hash value for one address.
type Record map[string]any

// Document maps an address to its record.
type Document map[string]Record

// PersistenceError reports that the updated document could not be written.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "Failed to write hashed interests: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Backend holds the durable document. Load returns an empty document when none
// exists yet. Save replaces the whole document.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

type Store struct {
	backend Backend
	locker  Locker
}

type StoreOption func(*Store)

// WithLocker serializes Merge calls through locker.
func WithLocker(locker Locker) StoreOption {
	return func(s *Store) {
		s.locker = locker
	}
}

func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func IsField(name string) bool {
	for _, field := range Fields {
		if field == name {
			return true
		}
	}
	return false
}

// Merge overwrites the supplied fields of address's record and persists the document.
// Fields not supplied keep their previous values. The address is the key verbatim;
// only a blank address is rejected.
func (s *Store) Merge(ctx context.Context, address string, fields map[string]any) error {
	if strings.TrimSpace(address) == "" {
		return ErrMissingAddress
	}
	for name := range fields {
		if !IsField(name) {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return fmt.Errorf("acquire interest writer lock: %w", err)
		}
		defer unlock()
	}

	doc, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load hashed interests: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	record, ok := doc[address]
	if !ok || record == nil {
		record = Record{}
		doc[address] = record
	}
	for name, value := range fields {
		record[name] = value
	}

	if err := s.backend.Save(ctx, doc); err != nil {
		log.Errorw("failed to persist hashed interests", "address", address, "err", err)
		return &PersistenceError{Err: err}
	}
	log.Debugw("merged hashed interests", "address", address, "fields", len(fields))
	return nil
}

// Get returns a copy of address's record.
func (s *Store) Get(ctx context.Context, address string) (Record, bool, error) {
	if strings.TrimSpace(address) == "" {
		return nil, false, ErrMissingAddress
	}
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load hashed interests: %w", err)
	}
	record, ok := doc[address]
	if !ok {
		return nil, false, nil
	}
	out := make(Record, len(record))
	for name, value := range record {
		out[name] = value
	}
	return out, true, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
