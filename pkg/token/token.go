// Package token is the host-side token ledger: balances and total supply of
// a ledger-native asset, kept in the same transactional store as contract
// state so a rolled-back invocation also rolls back its token movements.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/statestore"
)

var (
	ErrUnknownToken        = errors.New("token: unknown token")
	ErrTokenExists         = errors.New("token: already deployed")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrOverflow            = errors.New("token: amount overflows")
)

// Decimals is the precision of tokens deployed by this ledger.
const Decimals = 7

// Authorizer is the host's authorization primitive.
type Authorizer interface {
	RequireAuth(ctx context.Context, principal contract.Address) error
}

// Metadata describes a deployed token.
type Metadata struct {
	Admin    contract.Address `json:"admin"`
	Name     string           `json:"name"`
	Symbol   string           `json:"symbol"`
	Decimals int              `json:"decimals"`
}

// Ledger operates on one token inside one transaction.
type Ledger struct {
	kv   statestore.KV
	addr contract.Address
	auth Authorizer
}

// New returns a ledger for the token at addr. Operations fail with
// ErrUnknownToken if it was never deployed.
func New(kv statestore.KV, addr contract.Address, auth Authorizer) *Ledger {
	return &Ledger{kv: kv, addr: addr, auth: auth}
}

// Deploy registers a new token with its admin.
func Deploy(ctx context.Context, kv statestore.KV, addr contract.Address, md Metadata) error {
	if md.Admin == "" {
		return fmt.Errorf("%w: token admin is required", contract.ErrInvalidArgument)
	}
	_, ok, err := kv.Get(ctx, metaKey(addr))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, addr)
	}
	md.Decimals = Decimals
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return kv.Set(ctx, metaKey(addr), raw)
}

// Metadata returns the token's metadata.
func (l *Ledger) Metadata(ctx context.Context) (Metadata, error) {
	raw, ok, err := l.kv.Get(ctx, metaKey(l.addr))
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownToken, l.addr)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("token: decode metadata: %w", err)
	}
	return md, nil
}

// Mint credits amount to `to`. The token admin must authorize.
func (l *Ledger) Mint(ctx context.Context, to contract.Address, amount int64) error {
	md, err := l.Metadata(ctx)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := l.auth.RequireAuth(ctx, md.Admin); err != nil {
		return err
	}
	if err := l.add(ctx, balanceKey(l.addr, to), amount); err != nil {
		return err
	}
	return l.add(ctx, supplyKey(l.addr), amount)
}

// Burn debits amount from `from`. The holder must authorize.
func (l *Ledger) Burn(ctx context.Context, from contract.Address, amount int64) error {
	if _, err := l.Metadata(ctx); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := l.auth.RequireAuth(ctx, from); err != nil {
		return err
	}
	if err := l.add(ctx, balanceKey(l.addr, from), -amount); err != nil {
		return err
	}
	return l.add(ctx, supplyKey(l.addr), -amount)
}

// Transfer moves amount between holders. The sender must authorize.
func (l *Ledger) Transfer(ctx context.Context, from, to contract.Address, amount int64) error {
	if _, err := l.Metadata(ctx); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := l.auth.RequireAuth(ctx, from); err != nil {
		return err
	}
	if err := l.add(ctx, balanceKey(l.addr, from), -amount); err != nil {
		return err
	}
	return l.add(ctx, balanceKey(l.addr, to), amount)
}

// Balance returns the holder's balance in base units.
func (l *Ledger) Balance(ctx context.Context, of contract.Address) (int64, error) {
	if _, err := l.Metadata(ctx); err != nil {
		return 0, err
	}
	return l.get(ctx, balanceKey(l.addr, of))
}

// Supply returns the circulating supply in base units.
func (l *Ledger) Supply(ctx context.Context) (int64, error) {
	if _, err := l.Metadata(ctx); err != nil {
		return 0, err
	}
	return l.get(ctx, supplyKey(l.addr))
}

func (l *Ledger) get(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token: corrupt amount at %s: %w", key, err)
	}
	return n, nil
}

func (l *Ledger) add(ctx context.Context, key string, delta int64) error {
	cur, err := l.get(ctx, key)
	if err != nil {
		return err
	}
	if delta > 0 && cur > math.MaxInt64-delta {
		return ErrOverflow
	}
	next := cur + delta
	if next < 0 {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, cur, -delta)
	}
	return l.kv.Set(ctx, key, []byte(strconv.FormatInt(next, 10)))
}

func metaKey(addr contract.Address) string { return "token/" + string(addr) + "/meta" }

func supplyKey(addr contract.Address) string { return "token/" + string(addr) + "/supply" }

func balanceKey(addr, holder contract.Address) string {
	return "token/" + string(addr) + "/balance/" + string(holder)
}
