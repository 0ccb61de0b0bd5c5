package host

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/token"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: n-1", ErrReplay), KindReplay},
		{ErrNonceRequired, KindNonceRequired},
		{ErrUnknownFunction, KindUnknownFunction},
		{ErrLogicNotFound, KindLogicNotFound},
		{logic.ErrDowngrade, KindDowngrade},
		{logic.ErrInvalidBundle, KindInvalidBundle},
		{token.ErrUnknownToken, KindUnknownToken},
		{token.ErrTokenExists, KindTokenExists},
		{token.ErrInvalidAmount, KindInvalidAmount},
		{token.ErrOverflow, KindOverflow},
		// token failures surface through the contract wrapped in its own errors
		{fmt.Errorf("%w: burn: %w", contract.ErrInvalidArgument, token.ErrInsufficientBalance), KindInsufficientBalance},
		{contract.ErrOutOfRange, string(contract.KindOutOfRange)},
		{contract.ErrUnauthorized, string(contract.KindUnauthorized)},
		{errors.New("disk on fire"), string(contract.KindInternal)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorKind(tc.err), "%v", tc.err)
	}
}
