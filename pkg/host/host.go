// Package host is the in-process ledger the Seal contract runs on. It owns
// the transactional state backend, the token ledger, the logic bundle
// store and the invocation journal, and executes every invocation as one
// atomic unit: either all of its writes and token movements commit, or
// none do.
package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/keys"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/observability"
	"github.com/sealcoin/seal/pkg/statestore"
)

// DefaultContractName names the contract instance when none is configured.
const DefaultContractName = "seal-coin"

const (
	activeLogicKey = "host/logic/active"
	noncePrefix    = "host/nonce/"
)

var (
	ErrReplay          = errors.New("host: nonce already used")
	ErrNonceRequired   = errors.New("host: signed invocations need a nonce")
	ErrUnknownFunction = errors.New("host: unknown function")
	ErrLogicNotFound   = errors.New("host: logic bundle not found")
)

// Options configures a Host. Backend is required.
type Options struct {
	Backend    statestore.Backend
	Artifacts  artifacts.Store
	Authorizer Authorizer
	Metrics    *observability.Provider
	Logger     *slog.Logger
	// ContractName derives the contract's C-address.
	ContractName string
	// DisableJournal skips receipts.
	DisableJournal bool
}

type activeLogic struct {
	hash     string
	bundle   logic.Bundle
	contract *contract.Contract
}

// Host executes contract and token invocations.
type Host struct {
	backend   statestore.Backend
	artifacts artifacts.Store
	auth      Authorizer
	metrics   *observability.Provider
	journal   *journal.Journal
	logger    *slog.Logger
	address   contract.Address

	// mu serializes invocations and journal appends, and guards active.
	mu     sync.Mutex
	active *activeLogic
}

// New opens a host over the given backend, restoring the active logic
// recorded by a previous upgrade, if any.
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("host: a state backend is required")
	}
	h := &Host{
		backend:   opts.Backend,
		artifacts: opts.Artifacts,
		auth:      opts.Authorizer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if h.artifacts == nil {
		h.artifacts = artifacts.NewMemoryStore()
	}
	if h.auth == nil {
		h.auth = SignedAuthorizer{}
	}
	if h.logger == nil {
		h.logger = slog.Default().With("component", "host")
	}
	if h.metrics == nil {
		m, err := observability.New(ctx, &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		h.metrics = m
	}
	if !opts.DisableJournal {
		h.journal = journal.New(opts.Backend)
	}
	name := opts.ContractName
	if name == "" {
		name = DefaultContractName
	}
	h.address = keys.ContractAddress(name)

	builtin, err := h.publishBuiltin(ctx)
	if err != nil {
		return nil, err
	}
	h.active = builtin

	var stored string
	err = h.backend.View(ctx, func(kv statestore.KV) error {
		raw, ok, err := kv.Get(ctx, activeLogicKey)
		if ok {
			stored = string(raw)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("host: read active logic: %w", err)
	}
	if stored != "" && stored != builtin.hash {
		restored, err := h.loadLogic(ctx, stored)
		if err != nil {
			return nil, fmt.Errorf("host: restore active logic: %w", err)
		}
		h.active = restored
	}
	h.logger.InfoContext(ctx, "host ready",
		"contract", h.address,
		"logic", h.active.hash,
		"revision", h.active.bundle.Revision,
	)
	return h, nil
}

// publishBuiltin stores the built-in bundle so it can be reinstalled by hash.
func (h *Host) publishBuiltin(ctx context.Context) (*activeLogic, error) {
	b := logic.Default()
	data, err := b.Encode()
	if err != nil {
		return nil, err
	}
	hash, err := h.artifacts.Store(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("host: publish built-in logic: %w", err)
	}
	c, err := b.Contract(nil)
	if err != nil {
		return nil, err
	}
	return &activeLogic{hash: hash, bundle: b, contract: c}, nil
}

func (h *Host) loadLogic(ctx context.Context, hash string) (*activeLogic, error) {
	data, err := h.artifacts.Get(ctx, hash)
	if errors.Is(err, artifacts.ErrNotFound) || errors.Is(err, artifacts.ErrInvalidHash) {
		return nil, fmt.Errorf("%w: %s", ErrLogicNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	b, err := logic.Decode(data)
	if err != nil {
		return nil, err
	}
	c, err := b.Contract(nil)
	if err != nil {
		return nil, err
	}
	return &activeLogic{hash: hash, bundle: b, contract: c}, nil
}

// Address is the contract instance's C-address.
func (h *Host) Address() contract.Address { return h.address }

// Journal returns the receipt journal, or nil when disabled.
func (h *Host) Journal() *journal.Journal { return h.journal }

// LogicInfo describes the logic currently governing invocations.
type LogicInfo struct {
	Hash     string `json:"hash"`
	Revision string `json:"revision"`
	Version  uint32 `json:"version"`
}

func (h *Host) ActiveLogic() LogicInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return LogicInfo{Hash: h.active.hash, Revision: h.active.bundle.Revision, Version: h.active.contract.Version()}
}

// Version is the version reported by the active logic.
func (h *Host) Version() uint32 { return h.ActiveLogic().Version }

// State reads the persisted contract state.
func (h *Host) State(ctx context.Context) (contract.State, error) {
	h.mu.Lock()
	c := h.active.contract
	h.mu.Unlock()

	var st contract.State
	err := h.backend.View(ctx, func(kv statestore.KV) error {
		var err error
		st, err = c.State(ctx, &txEnv{host: h, kv: kv})
		return err
	})
	return st, err
}

// PublishLogic validates and stores a bundle, returning the hash an upgrade
// refers to it by.
func (h *Host) PublishLogic(ctx context.Context, b logic.Bundle) (string, error) {
	data, err := b.Encode()
	if err != nil {
		return "", err
	}
	hash, err := h.artifacts.Store(ctx, data)
	if err != nil {
		return "", fmt.Errorf("host: publish logic: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(ctx, journal.Receipt{
		Kind:     "publish",
		Function: "publish_logic",
		Status:   journal.StatusOK,
		Detail:   map[string]string{"hash": hash, "revision": b.Revision},
	})
	h.logger.InfoContext(ctx, "logic published", "hash", hash, "revision", b.Revision)
	return hash, nil
}

// record appends a receipt. Callers hold mu. Failures are logged, never returned: the
// invocation outcome is already decided.
func (h *Host) record(ctx context.Context, r journal.Receipt) uint64 {
	if h.journal == nil {
		return 0
	}
	e, err := h.journal.Append(ctx, r)
	if err != nil {
		h.logger.ErrorContext(ctx, "journal append failed", "function", r.Function, "error", err)
		return 0
	}
	return e.Sequence
}

// InvocationDigest is the value auth entries sign for an invocation of
// function on target with args and nonce.
func InvocationDigest(target contract.Address, function string, args json.RawMessage, nonce string) (string, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	raw, err := json.Marshal(struct {
		Contract contract.Address `json:"contract"`
		Function string           `json:"function"`
		Args     json.RawMessage  `json:"args"`
		Nonce    string           `json:"nonce"`
	}{target, function, args, nonce})
	if err != nil {
		return "", fmt.Errorf("%w: args: %v", contract.ErrInvalidArgument, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: args: %v", contract.ErrInvalidArgument, err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// authorize verifies entries and consumes the nonce inside kv.
func (h *Host) authorize(ctx context.Context, kv statestore.KV, target contract.Address, function string, args json.RawMessage, nonce string, entries []string) (Grant, error) {
	if len(entries) > 0 && nonce == "" {
		return Grant{}, ErrNonceRequired
	}
	digest, err := InvocationDigest(target, function, args, nonce)
	if err != nil {
		return Grant{}, err
	}
	g, err := h.auth.Authorize(ctx, digest, entries)
	if err != nil {
		return Grant{}, err
	}
	if nonce == "" {
		return g, nil
	}
	key := noncePrefix + string(target) + "/" + nonce
	_, used, err := kv.Get(ctx, key)
	if err != nil {
		return Grant{}, err
	}
	if used {
		return Grant{}, fmt.Errorf("%w: %s", ErrReplay, nonce)
	}
	return g, kv.Set(ctx, key, []byte(digest))
}
