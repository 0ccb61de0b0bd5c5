package host

import (
	"context"
	"fmt"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/statestore"
	"github.com/sealcoin/seal/pkg/token"
)

// contractStorage scopes a transaction to one contract instance.
type contractStorage struct {
	kv     statestore.KV
	prefix string
}

func newContractStorage(kv statestore.KV, addr contract.Address) contractStorage {
	return contractStorage{kv: kv, prefix: "contract/" + string(addr) + "/"}
}

func (s contractStorage) Get(ctx context.Context, key contract.Key) ([]byte, bool, error) {
	return s.kv.Get(ctx, s.prefix+string(key))
}

func (s contractStorage) Set(ctx context.Context, key contract.Key, value []byte) error {
	return s.kv.Set(ctx, s.prefix+string(key), value)
}

func (s contractStorage) Remove(ctx context.Context, key contract.Key) error {
	return s.kv.Delete(ctx, s.prefix+string(key))
}

func (s contractStorage) Has(ctx context.Context, key contract.Key) (bool, error) {
	_, ok, err := s.kv.Get(ctx, s.prefix+string(key))
	return ok, err
}

// txEnv is the contract.Env for one invocation.
type txEnv struct {
	host    *Host
	kv      statestore.KV
	grant   Grant
	current *activeLogic
	pending *activeLogic
}

var _ contract.Env = (*txEnv)(nil)

func (e *txEnv) Storage() contract.Storage {
	return newContractStorage(e.kv, e.host.address)
}

func (e *txEnv) RequireAuth(ctx context.Context, principal contract.Address) error {
	return e.grant.RequireAuth(ctx, principal)
}

func (e *txEnv) Token(addr contract.Address) contract.TokenClient {
	return token.New(e.kv, addr, e.grant)
}

// UpdateCurrentLogic stages the bundle at codeHash. It becomes active only
// if the invocation commits.
func (e *txEnv) UpdateCurrentLogic(ctx context.Context, codeHash string) error {
	next, err := e.host.loadLogic(ctx, codeHash)
	if err != nil {
		return err
	}
	if err := logic.CheckUpgrade(e.current.bundle.Revision, next.bundle.Revision); err != nil {
		return err
	}
	if err := e.kv.Set(ctx, activeLogicKey, []byte(codeHash)); err != nil {
		return fmt.Errorf("persist active logic: %w", err)
	}
	e.pending = next
	return nil
}
