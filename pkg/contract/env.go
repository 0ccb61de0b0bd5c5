package contract

import "context"

// Address identifies a principal (account) or a contract on the host ledger.
type Address string

// Storage is the host's key/value store, scoped to this contract instance.
// Writes are only durable if the surrounding invocation commits.
type Storage interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, value []byte) error
	Remove(ctx context.Context, key Key) error
	Has(ctx context.Context, key Key) (bool, error)
}

// TokenClient is the external token ledger the contract controls supply for.
// Amounts are in base units.
type TokenClient interface {
	Transfer(ctx context.Context, from, to Address, amount int64) error
	Mint(ctx context.Context, to Address, amount int64) error
	Burn(ctx context.Context, from Address, amount int64) error
	Balance(ctx context.Context, of Address) (int64, error)
}

// Env is everything the host ledger provides to one invocation.
type Env interface {
	// Storage returns the contract's transactional key/value store.
	Storage() Storage
	// RequireAuth succeeds only if the current invocation was authorized by
	// principal. A failure aborts the invocation.
	RequireAuth(ctx context.Context, principal Address) error
	// Token returns a client for the token ledger at addr.
	Token(addr Address) TokenClient
	// UpdateCurrentLogic replaces the logic governing future invocations.
	UpdateCurrentLogic(ctx context.Context, codeHash string) error
}
