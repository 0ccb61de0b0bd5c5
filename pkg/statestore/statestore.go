// Package statestore provides the transactional key/value backends behind the
// host ledger. Every backend gives Update all-or-nothing semantics: the
// writes made inside fn become visible only if fn returns nil.
package statestore

import (
	"context"
	"errors"
)

// ErrConflict is returned when a transaction could not be committed because
// of concurrent writers, after the backend's retries are exhausted.
var ErrConflict = errors.New("statestore: transaction conflict")

// KV is the view of the store inside one transaction.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend runs transactions against durable (or in-memory) storage.
type Backend interface {
	// Update runs fn in a read-write transaction. fn may be called more than
	// once by backends that retry on conflicts.
	Update(ctx context.Context, fn func(kv KV) error) error
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(kv KV) error) error
	Close() error
}

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("statestore: write in read-only transaction")

// overlay buffers writes on top of a read function.
type overlay struct {
	read   func(ctx context.Context, key string) ([]byte, bool, error)
	writes map[string][]byte
	// deleted keys are present in writes with a nil value
	readOnly bool
}

func newOverlay(read func(ctx context.Context, key string) ([]byte, bool, error)) *overlay {
	return &overlay{read: read, writes: make(map[string][]byte)}
}

func (o *overlay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := o.writes[key]; ok {
		if v == nil {
			return nil, false, nil
		}
		return clone(v), true, nil
	}
	return o.read(ctx, key)
}

func (o *overlay) Set(_ context.Context, key string, value []byte) error {
	if o.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	o.writes[key] = clone(value)
	return nil
}

func (o *overlay) Delete(_ context.Context, key string) error {
	if o.readOnly {
		return ErrReadOnly
	}
	o.writes[key] = nil
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
