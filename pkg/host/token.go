package host

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/keys"
	"github.com/sealcoin/seal/pkg/statestore"
	"github.com/sealcoin/seal/pkg/token"
)

// Token function names.
const (
	TokenDeploy   = "deploy"
	TokenMint     = "mint"
	TokenBurn     = "burn"
	TokenTransfer = "transfer"
	TokenBalance  = "balance"
)

// TokenInvocation is one call into the token ledger.
type TokenInvocation struct {
	Token    contract.Address `json:"token"`
	Function string           `json:"function"`
	Args     TokenArgs        `json:"args"`
	Nonce    string           `json:"nonce,omitempty"`
	Auth     []string         `json:"auth,omitempty"`
}

// TokenArgs carries the arguments of every token function; each function
// reads the fields it needs.
type TokenArgs struct {
	Admin  contract.Address `json:"admin,omitempty"`
	Name   string           `json:"name,omitempty"`
	Symbol string           `json:"symbol,omitempty"`
	From   contract.Address `json:"from,omitempty"`
	To     contract.Address `json:"to,omitempty"`
	Holder contract.Address `json:"holder,omitempty"`
	Amount int64            `json:"amount,omitempty"`
}

// TokenResult is the outcome of a committed token invocation.
type TokenResult struct {
	Token    contract.Address `json:"token"`
	Function string           `json:"function"`
	Balance  *int64           `json:"balance,omitempty"`
	Supply   *int64           `json:"supply,omitempty"`
	Receipt  uint64           `json:"receipt,omitempty"`
}

// TokenAddress derives the C-address of a token from its symbol.
func TokenAddress(symbol string) contract.Address {
	return keys.ContractAddress("token:" + symbol)
}

// InvokeToken runs a token ledger function in a single transaction.
func (h *Host) InvokeToken(ctx context.Context, inv TokenInvocation) (*TokenResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, done := h.metrics.TrackInvocation(ctx, "token."+inv.Function)
	var grant Grant
	res, err := h.invokeToken(ctx, inv, &grant)
	done(err)

	receipt := journal.Receipt{
		Kind:     "token",
		Contract: string(inv.Token),
		Function: inv.Function,
		Signers:  grant.Signers(),
		Status:   journal.StatusOK,
	}
	if inv.Args.Amount != 0 {
		receipt.Detail = map[string]string{"amount": strconv.FormatInt(inv.Args.Amount, 10)}
	}
	if err != nil {
		receipt.Status = journal.StatusFailed
		receipt.ErrorKind = ErrorKind(err)
		receipt.Error = err.Error()
		h.record(ctx, receipt)
		return nil, err
	}
	if inv.Function != TokenBalance {
		res.Receipt = h.record(ctx, receipt)
	}
	return res, nil
}

// Resolve fills in the token address of a deploy from its symbol.
func (inv *TokenInvocation) Resolve() error {
	if inv.Token != "" {
		return nil
	}
	if inv.Function != TokenDeploy || inv.Args.Symbol == "" {
		return fmt.Errorf("%w: token address is required", contract.ErrInvalidArgument)
	}
	inv.Token = TokenAddress(inv.Args.Symbol)
	return nil
}

// Digest is the value auth entries for this invocation must sign.
func (inv TokenInvocation) Digest() (string, error) {
	if err := inv.Resolve(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(inv.Args)
	if err != nil {
		return "", err
	}
	return InvocationDigest(inv.Token, inv.Function, raw, inv.Nonce)
}

// Sign attaches one auth entry per signer.
func (inv *TokenInvocation) Sign(ttl time.Duration, signers ...*keys.KeyPair) error {
	digest, err := inv.Digest()
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

func (h *Host) invokeToken(ctx context.Context, inv TokenInvocation, grant *Grant) (*TokenResult, error) {
	if err := inv.Resolve(); err != nil {
		return nil, err
	}
	res := &TokenResult{Token: inv.Token, Function: inv.Function}

	if inv.Function == TokenBalance {
		err := h.backend.View(ctx, func(kv statestore.KV) error {
			l := token.New(kv, inv.Token, Grant{})
			bal, err := l.Balance(ctx, inv.Args.Holder)
			if err != nil {
				return err
			}
			sup, err := l.Supply(ctx)
			if err != nil {
				return err
			}
			res.Balance, res.Supply = &bal, &sup
			return nil
		})
		return res, err
	}

	args, err := json.Marshal(inv.Args)
	if err != nil {
		return nil, err
	}
	err = h.backend.Update(ctx, func(kv statestore.KV) error {
		g, err := h.authorize(ctx, kv, inv.Token, inv.Function, args, inv.Nonce, inv.Auth)
		if err != nil {
			return err
		}
		*grant = g
		l := token.New(kv, inv.Token, g)
		switch inv.Function {
		case TokenDeploy:
			if err := g.RequireAuth(ctx, inv.Args.Admin); err != nil {
				return err
			}
			return token.Deploy(ctx, kv, inv.Token, token.Metadata{
				Admin:  inv.Args.Admin,
				Name:   inv.Args.Name,
				Symbol: inv.Args.Symbol,
			})
		case TokenMint:
			return l.Mint(ctx, inv.Args.To, inv.Args.Amount)
		case TokenBurn:
			return l.Burn(ctx, inv.Args.From, inv.Args.Amount)
		case TokenTransfer:
			return l.Transfer(ctx, inv.Args.From, inv.Args.To, inv.Args.Amount)
		default:
			return fmt.Errorf("%w: token.%s", ErrUnknownFunction, inv.Function)
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Balance reads holder's balance of tok.
func (h *Host) Balance(ctx context.Context, tok, holder contract.Address) (int64, error) {
	res, err := h.InvokeToken(ctx, TokenInvocation{Token: tok, Function: TokenBalance, Args: TokenArgs{Holder: holder}})
	if err != nil {
		return 0, err
	}
	return *res.Balance, nil
}
