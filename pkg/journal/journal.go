// Package journal keeps an append-only, hash-chained record of every
// invocation the host processes, successful or not.
//
// Entries live in the host's state backend under their own keys and are
// written in a transaction separate from the invocation, so a rolled-back
// invocation still leaves a receipt.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/sealcoin/seal/pkg/statestore"
)

const (
	GenesisHash = "genesis"

	headKey     = "journal/head"
	entryPrefix = "journal/entry/"
)

var (
	ErrNotFound = errors.New("journal: entry not found")
	ErrBroken   = errors.New("journal: chain broken")
)

// Status of a recorded invocation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Receipt is the content recorded for one invocation.
type Receipt struct {
	Kind      string            `json:"kind"`
	Contract  string            `json:"contract,omitempty"`
	Function  string            `json:"function"`
	Signers   []string          `json:"signers,omitempty"`
	Status    Status            `json:"status"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Entry is an immutable, hash-chained receipt.
type Entry struct {
	Sequence    uint64    `json:"sequence"`
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	PrevHash    string    `json:"prev_hash"`
	Timestamp   time.Time `json:"timestamp"`
	Receipt     Receipt   `json:"receipt"`
}

type head struct {
	Sequence uint64 `json:"sequence"`
	Hash     string `json:"hash"`
}

// Journal appends to and reads from the chain stored in a backend.
type Journal struct {
	backend statestore.Backend
	clock   func() time.Time
}

func New(backend statestore.Backend) *Journal {
	return &Journal{backend: backend, clock: time.Now}
}

// WithClock overrides clock for testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

// Append records r as the next entry.
func (j *Journal) Append(ctx context.Context, r Receipt) (Entry, error) {
	var entry Entry
	err := j.backend.Update(ctx, func(kv statestore.KV) error {
		h, err := readHead(ctx, kv)
		if err != nil {
			return err
		}
		entry = Entry{
			Sequence:  h.Sequence + 1,
			ID:        uuid.New().String(),
			PrevHash:  h.Hash,
			Timestamp: j.clock().UTC(),
			Receipt:   r,
		}
		entry.ContentHash, err = contentHash(entry)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("journal: marshal entry: %w", err)
		}
		if err := kv.Set(ctx, entryKey(entry.Sequence), raw); err != nil {
			return err
		}
		next, _ := json.Marshal(head{Sequence: entry.Sequence, Hash: entry.ContentHash})
		return kv.Set(ctx, headKey, next)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Head returns the latest sequence number and hash.
func (j *Journal) Head(ctx context.Context) (uint64, string, error) {
	var h head
	err := j.backend.View(ctx, func(kv statestore.KV) error {
		var err error
		h, err = readHead(ctx, kv)
		return err
	})
	return h.Sequence, h.Hash, err
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(ctx context.Context, seq uint64) (*Entry, error) {
	var e *Entry
	err := j.backend.View(ctx, func(kv statestore.KV) error {
		var err error
		e, err = readEntry(ctx, kv, seq)
		return err
	})
	return e, err
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	err := j.backend.View(ctx, func(kv statestore.KV) error {
		h, err := readHead(ctx, kv)
		if err != nil {
			return err
		}
		for seq := h.Sequence; seq > 0; seq-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			e, err := readEntry(ctx, kv, seq)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return nil
	})
	return out, err
}

// Verify walks the whole chain and recomputes every content hash.
func (j *Journal) Verify(ctx context.Context) error {
	return j.backend.View(ctx, func(kv statestore.KV) error {
		h, err := readHead(ctx, kv)
		if err != nil {
			return err
		}
		prev := GenesisHash
		for seq := uint64(1); seq <= h.Sequence; seq++ {
			e, err := readEntry(ctx, kv, seq)
			if err != nil {
				return err
			}
			if e.PrevHash != prev {
				return fmt.Errorf("%w at entry %d: expected prev %s, got %s", ErrBroken, seq, prev, e.PrevHash)
			}
			computed, err := contentHash(*e)
			if err != nil {
				return err
			}
			if computed != e.ContentHash {
				return fmt.Errorf("%w: hash mismatch at entry %d", ErrBroken, seq)
			}
			prev = e.ContentHash
		}
		if prev != h.Hash {
			return fmt.Errorf("%w: head does not match last entry", ErrBroken)
		}
		return nil
	})
}

func contentHash(e Entry) (string, error) {
	input := struct {
		Seq       uint64  `json:"seq"`
		ID        string  `json:"id"`
		Timestamp string  `json:"ts"`
		Receipt   Receipt `json:"receipt"`
		PrevHash  string  `json:"prev"`
	}{e.Sequence, e.ID, e.Timestamp.Format(time.RFC3339Nano), e.Receipt, e.PrevHash}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("journal: marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("journal: canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func readHead(ctx context.Context, kv statestore.KV) (head, error) {
	raw, ok, err := kv.Get(ctx, headKey)
	if err != nil {
		return head{}, err
	}
	if !ok {
		return head{Hash: GenesisHash}, nil
	}
	var h head
	if err := json.Unmarshal(raw, &h); err != nil {
		return head{}, fmt.Errorf("journal: decode head: %w", err)
	}
	return h, nil
}

func readEntry(ctx context.Context, kv statestore.KV, seq uint64) (*Entry, error) {
	raw, ok, err := kv.Get(ctx, entryKey(seq))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("journal: decode entry %d: %w", seq, err)
	}
	return &e, nil
}

func entryKey(seq uint64) string { return fmt.Sprintf("%s%020d", entryPrefix, seq) }
