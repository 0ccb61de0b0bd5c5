package host

import (
	"errors"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/token"
)

// Error kinds raised by the host and the token ledger, outside the
// contract taxonomy.
const (
	KindReplay              = "Replay"
	KindNonceRequired       = "NonceRequired"
	KindUnknownFunction     = "UnknownFunction"
	KindLogicNotFound       = "LogicNotFound"
	KindDowngrade           = "Downgrade"
	KindInvalidBundle       = "InvalidBundle"
	KindUnknownToken        = "UnknownToken"
	KindTokenExists         = "TokenExists"
	KindInvalidAmount       = "InvalidAmount"
	KindInsufficientBalance = "InsufficientBalance"
	KindOverflow            = "Overflow"
)

// Matched before the contract taxonomy: token errors reach the host
// wrapped inside contract errors.
var hostKinds = []struct {
	err  error
	kind string
}{
	{ErrReplay, KindReplay},
	{ErrNonceRequired, KindNonceRequired},
	{ErrUnknownFunction, KindUnknownFunction},
	{ErrLogicNotFound, KindLogicNotFound},
	{logic.ErrDowngrade, KindDowngrade},
	{logic.ErrInvalidBundle, KindInvalidBundle},
	{token.ErrUnknownToken, KindUnknownToken},
	{token.ErrTokenExists, KindTokenExists},
	{token.ErrInvalidAmount, KindInvalidAmount},
	{token.ErrInsufficientBalance, KindInsufficientBalance},
	{token.ErrOverflow, KindOverflow},
}

// ErrorKind names err for receipts and API problems. Unknown errors are
// contract.KindInternal; nil is "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range hostKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return string(contract.KindOf(err))
}
