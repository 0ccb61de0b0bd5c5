package keys

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sealcoin/seal/pkg/contract"
)

const authIssuer = "seal/auth"

var ErrInvalidAuth = errors.New("keys: invalid authorization entry")

// AuthClaims bind a signer's address to one invocation digest.
type AuthClaims struct {
	jwt.RegisteredClaims
	Invocation string `json:"inv"`
}

// SignAuth produces an authorization entry for the invocation identified
// by digest. A zero ttl omits the expiry.
func SignAuth(k *KeyPair, digest string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(k.Address()),
			Issuer:   authIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Invocation: digest,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k.PrivateKey())
}

// VerifyAuth checks an authorization entry's signature against the key
// encoded in its subject and that it covers digest. It returns the
// authorizing address.
func VerifyAuth(entry, digest string) (contract.Address, error) {
	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(entry, claims, func(t *jwt.Token) (interface{}, error) {
		c, ok := t.Claims.(*AuthClaims)
		if !ok {
			return nil, ErrInvalidAuth
		}
		return ParseAccount(contract.Address(c.Subject))
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(authIssuer),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAuth, err)
	}
	if !token.Valid {
		return "", ErrInvalidAuth
	}
	if claims.Invocation != digest {
		return "", fmt.Errorf("%w: entry signed for a different invocation", ErrInvalidAuth)
	}
	return contract.Address(claims.Subject), nil
}
