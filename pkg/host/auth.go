package host

import (
	"context"
	"fmt"
	"sort"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/keys"
)

// Grant is the set of principals that authorized one invocation.
type Grant struct {
	all     bool
	signers map[contract.Address]bool
}

// Allows reports whether principal authorized the invocation.
func (g Grant) Allows(principal contract.Address) bool {
	return g.all || g.signers[principal]
}

// Signers lists the verified signers in address order.
func (g Grant) Signers() []string {
	out := make([]string, 0, len(g.signers))
	for a := range g.signers {
		out = append(out, string(a))
	}
	sort.Strings(out)
	return out
}

// RequireAuth satisfies token.Authorizer.
func (g Grant) RequireAuth(_ context.Context, principal contract.Address) error {
	if !g.Allows(principal) {
		return fmt.Errorf("%w: %s did not authorize this invocation", contract.ErrUnauthorized, principal)
	}
	return nil
}

// Authorizer turns the auth entries attached to an invocation into a Grant.
type Authorizer interface {
	Authorize(ctx context.Context, digest string, entries []string) (Grant, error)
}

// SignedAuthorizer accepts only entries signed by the principal's key over
// the invocation digest.
type SignedAuthorizer struct{}

func (SignedAuthorizer) Authorize(_ context.Context, digest string, entries []string) (Grant, error) {
	g := Grant{signers: make(map[contract.Address]bool, len(entries))}
	for i, entry := range entries {
		addr, err := keys.VerifyAuth(entry, digest)
		if err != nil {
			return Grant{}, fmt.Errorf("%w: auth entry %d: %w", contract.ErrUnauthorized, i, err)
		}
		g.signers[addr] = true
	}
	return g, nil
}

// AllowAll authorizes every principal. Local tooling and tests only.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, []string) (Grant, error) {
	return Grant{all: true, signers: map[contract.Address]bool{}}, nil
}
