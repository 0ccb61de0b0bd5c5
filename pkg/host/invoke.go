package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/keys"
	"github.com/sealcoin/seal/pkg/statestore"
)

// Contract function names.
const (
	FnInit               = "init"
	FnUpdateSeaIceExtent = "update_sea_ice_extent"
	FnReset              = "reset"
	FnUpgrade            = "upgrade"
	FnVersion            = "version"
)

// Invocation is one call into the contract.
type Invocation struct {
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args,omitempty"`
	Nonce    string          `json:"nonce,omitempty"`
	// Auth holds signed authorization entries over InvocationDigest.
	Auth []string `json:"auth,omitempty"`
}

type InitArgs struct {
	Admin contract.Address `json:"admin"`
	Token contract.Address `json:"token"`
}

type UpdateArgs struct {
	Issuer      contract.Address `json:"issuer"`
	Distributor contract.Address `json:"distributor"`
	DayOfYear   uint32           `json:"day_of_year"`
	Extent      uint32           `json:"extent"`
}

type UpgradeArgs struct {
	CodeHash string `json:"code_hash"`
}

// Result is the outcome of a committed invocation.
type Result struct {
	Function string                   `json:"function"`
	Decision *contract.SupplyDecision `json:"decision,omitempty"`
	Version  uint32                   `json:"version,omitempty"`
	Logic    *LogicInfo               `json:"logic,omitempty"`
	Receipt  uint64                   `json:"receipt,omitempty"`
}

// NewInvocation marshals args into an Invocation.
func NewInvocation(function string, args any, nonce string) (Invocation, error) {
	inv := Invocation{Function: function, Nonce: nonce}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return Invocation{}, err
		}
		inv.Args = raw
	}
	return inv, nil
}

// Digest is the value auth entries for inv on target must sign.
func (inv Invocation) Digest(target contract.Address) (string, error) {
	return InvocationDigest(target, inv.Function, inv.Args, inv.Nonce)
}

// Sign attaches one auth entry per signer.
func (inv *Invocation) Sign(target contract.Address, ttl time.Duration, signers ...*keys.KeyPair) error {
	digest, err := inv.Digest(target)
	if err != nil {
		return err
	}
	entries, err := signAll(digest, ttl, signers)
	if err != nil {
		return err
	}
	inv.Auth = append(inv.Auth, entries...)
	return nil
}

func signAll(digest string, ttl time.Duration, signers []*keys.KeyPair) ([]string, error) {
	out := make([]string, 0, len(signers))
	for _, k := range signers {
		entry, err := keys.SignAuth(k, digest, ttl)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Invoke runs inv against the contract in a single transaction.
func (h *Host) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if inv.Function == FnVersion {
		return &Result{Function: FnVersion, Version: h.active.contract.Version()}, nil
	}

	ctx, done := h.metrics.TrackInvocation(ctx, inv.Function)
	res, grant, err := h.invoke(ctx, inv)
	done(err)

	receipt := journal.Receipt{
		Kind:     "invoke",
		Contract: string(h.address),
		Function: inv.Function,
		Signers:  grant.Signers(),
		Status:   journal.StatusOK,
	}
	if err != nil {
		receipt.Status = journal.StatusFailed
		receipt.ErrorKind = ErrorKind(err)
		receipt.Error = err.Error()
		h.logger.WarnContext(ctx, "invocation failed", "function", inv.Function, "kind", receipt.ErrorKind, "error", err)
		h.record(ctx, receipt)
		return nil, err
	}
	if res.Decision != nil {
		d := res.Decision
		receipt.Detail = map[string]string{
			"day_of_year": strconv.FormatUint(uint64(d.DayOfYear), 10),
			"extent":      strconv.FormatUint(uint64(d.Extent), 10),
			"action":      string(d.Action),
			"amount":      strconv.FormatInt(d.Amount(), 10),
		}
		h.metrics.RecordSupply(ctx, *d)
	}
	if res.Logic != nil {
		receipt.Detail = map[string]string{"hash": res.Logic.Hash, "revision": res.Logic.Revision}
	}
	res.Receipt = h.record(ctx, receipt)
	return res, nil
}

func (h *Host) invoke(ctx context.Context, inv Invocation) (*Result, Grant, error) {
	var (
		res   *Result
		grant Grant
		env   *txEnv
	)
	c := h.active.contract

	err := h.backend.Update(ctx, func(kv statestore.KV) error {
		res, env = nil, nil
		g, err := h.authorize(ctx, kv, h.address, inv.Function, inv.Args, inv.Nonce, inv.Auth)
		if err != nil {
			return err
		}
		grant = g
		env = &txEnv{host: h, kv: kv, grant: g, current: h.active}
		res, err = h.dispatch(ctx, c, env, inv)
		return err
	})
	if err != nil {
		return nil, grant, err
	}
	if env.pending != nil {
		h.active = env.pending
		info := LogicInfo{Hash: h.active.hash, Revision: h.active.bundle.Revision, Version: h.active.contract.Version()}
		res.Logic = &info
		h.logger.InfoContext(ctx, "logic upgraded", "hash", info.Hash, "revision", info.Revision, "version", info.Version)
	}
	return res, grant, nil
}

func (h *Host) dispatch(ctx context.Context, c *contract.Contract, env *txEnv, inv Invocation) (*Result, error) {
	res := &Result{Function: inv.Function}
	switch inv.Function {
	case FnInit:
		var a InitArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		return res, c.Init(ctx, env, a.Admin, a.Token)
	case FnUpdateSeaIceExtent:
		var a UpdateArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		d, err := c.UpdateSeaIceExtent(ctx, env, a.Issuer, a.Distributor, a.DayOfYear, a.Extent)
		if err != nil {
			return nil, err
		}
		res.Decision = &d
		return res, nil
	case FnReset:
		if err := decodeArgs(inv.Args, &struct{}{}); err != nil {
			return nil, err
		}
		return res, c.Reset(ctx, env)
	case FnUpgrade:
		var a UpgradeArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		return res, c.Upgrade(ctx, env, a.CodeHash)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, inv.Function)
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: args: %v", contract.ErrInvalidArgument, err)
	}
	return nil
}
