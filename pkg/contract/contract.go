// Package contract implements the Seal Coin supply controller: a lifecycle
// state machine (uninitialized, initialized, reset) guarding an engine that
// turns a daily sea-ice-extent reading into a mint or burn on the token
// ledger.
//
// The contract holds no state of its own. Every operation receives the
// host's Env, and the host commits or rolls back all of its effects as one
// unit.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealcoin/seal/pkg/baseline"
)

// DefaultVersion is the revision number of the built-in decision logic.
const DefaultVersion uint32 = 1

// Contract is one revision of the decision logic.
type Contract struct {
	engine  *Engine
	version uint32
	logger  *slog.Logger
}

// Option configures a Contract.
type Option func(*Contract)

// WithVersion overrides the reported logic revision.
func WithVersion(v uint32) Option {
	return func(c *Contract) { c.version = v }
}

// WithLogger sets the logger used for decision records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Contract) { c.logger = l }
}

// New creates a contract over table (nil selects the embedded default).
func New(table *baseline.Table, opts ...Option) *Contract {
	c := &Contract{
		engine:  NewEngine(table),
		version: DefaultVersion,
		logger:  slog.Default().With("component", "contract"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version reports which revision of the decision logic is deployed.
func (c *Contract) Version() uint32 { return c.version }

// Engine returns the contract's supply engine.
func (c *Contract) Engine() *Engine { return c.engine }

// Init persists admin and token. Initialization is one-shot: an initialized
// contract rejects it, and re-initializing after Reset needs the stored
// admin's authorization.
func (c *Contract) Init(ctx context.Context, env Env, admin, token Address) error {
	if admin == "" || token == "" {
		return fmt.Errorf("%w: admin and token are required", ErrInvalidArgument)
	}

	st := env.Storage()
	s, err := loadState(ctx, st)
	if err != nil {
		return err
	}
	if s.Initialized() {
		return ErrAlreadyInitialized
	}
	if s.Admin != "" {
		if err := requireAuth(ctx, env, s.Admin); err != nil {
			return err
		}
	}

	if err := putJSON(ctx, st, KeyAdmin, admin); err != nil {
		return err
	}
	if err := putJSON(ctx, st, KeyToken, token); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "contract initialized", "admin", admin, "token", token)
	return nil
}

// UpdateSeaIceExtent records a reading and corrects the token supply by the
// scaled deviation from the baseline, unless it falls inside the deadband.
// Growth is authorized by issuer, contraction by distributor.
//
// Growth is minted through the token's own Mint, which checks the token
// admin. The issuer alone suffices only when the issuer is that admin,
// which is how tokens are deployed for this contract; otherwise the token
// admin must sign the update as well.
func (c *Contract) UpdateSeaIceExtent(ctx context.Context, env Env, issuer, distributor Address, dayOfYear, extent uint32) (SupplyDecision, error) {
	st := env.Storage()
	s, err := loadState(ctx, st)
	if err != nil {
		return SupplyDecision{}, err
	}
	if !s.Initialized() {
		return SupplyDecision{}, ErrNotInitialized
	}
	if err := ValidateReading(dayOfYear, extent); err != nil {
		return SupplyDecision{}, err
	}

	// Recorded ahead of the supply step; the host discards it if the
	// invocation aborts below.
	if err := putJSON(ctx, st, KeySealData, Reading{DayOfYear: dayOfYear, Extent: extent}); err != nil {
		return SupplyDecision{}, err
	}

	d, err := c.engine.Evaluate(dayOfYear, extent)
	if err != nil {
		return SupplyDecision{}, err
	}

	tok := env.Token(s.Token)
	switch d.Action {
	case ActionMint:
		if err := requireAuth(ctx, env, issuer); err != nil {
			return SupplyDecision{}, err
		}
		if err := tok.Mint(ctx, distributor, d.Amount()); err != nil {
			return SupplyDecision{}, fmt.Errorf("mint %d to %s: %w", d.Amount(), distributor, err)
		}
	case ActionBurn:
		if err := requireAuth(ctx, env, distributor); err != nil {
			return SupplyDecision{}, err
		}
		if err := tok.Burn(ctx, distributor, d.Amount()); err != nil {
			return SupplyDecision{}, fmt.Errorf("burn %d from %s: %w", d.Amount(), distributor, err)
		}
	}

	c.logger.InfoContext(ctx, "supply decision",
		"day_of_year", dayOfYear,
		"extent", extent,
		"baseline", d.Baseline,
		"delta", d.DeltaRaw,
		"action", d.Action,
		"amount", d.Amount(),
	)
	return d, nil
}

// Reset removes the token and the last reading. The admin survives, and the
// engine refuses to run until Init is called again.
func (c *Contract) Reset(ctx context.Context, env Env) error {
	st := env.Storage()
	admin, err := c.admin(ctx, st)
	if err != nil {
		return err
	}
	if err := requireAuth(ctx, env, admin); err != nil {
		return err
	}
	if err := remove(ctx, st, KeyToken); err != nil {
		return err
	}
	if err := remove(ctx, st, KeySealData); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "contract reset", "admin", admin)
	return nil
}

// Upgrade asks the host to replace the logic behind future invocations.
// Persisted state is left untouched.
func (c *Contract) Upgrade(ctx context.Context, env Env, codeHash string) error {
	if codeHash == "" {
		return fmt.Errorf("%w: code hash is required", ErrInvalidArgument)
	}
	admin, err := c.admin(ctx, env.Storage())
	if err != nil {
		return err
	}
	if err := requireAuth(ctx, env, admin); err != nil {
		return err
	}
	if err := env.UpdateCurrentLogic(ctx, codeHash); err != nil {
		return fmt.Errorf("update logic: %w", err)
	}
	c.logger.InfoContext(ctx, "logic upgrade requested", "code_hash", codeHash)
	return nil
}

// State returns the persisted contract state.
func (c *Contract) State(ctx context.Context, env Env) (State, error) {
	return loadState(ctx, env.Storage())
}

func (c *Contract) admin(ctx context.Context, st Storage) (Address, error) {
	s, err := loadState(ctx, st)
	if err != nil {
		return "", err
	}
	if s.Admin == "" {
		return "", ErrNotInitialized
	}
	return s.Admin, nil
}

func requireAuth(ctx context.Context, env Env, principal Address) error {
	err := env.RequireAuth(ctx, principal)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnauthorized, principal, err)
}
