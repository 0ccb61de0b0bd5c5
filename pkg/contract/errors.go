package contract

import "errors"

// ErrorKind names an entry of the contract's error taxonomy. It is the value
// reported to submitters when an invocation aborts.
type ErrorKind string

const (
	KindNotInitialized     ErrorKind = "NotInitialized"
	KindAlreadyInitialized ErrorKind = "AlreadyInitialized"
	KindOutOfRange         ErrorKind = "OutOfRange"
	KindUnauthorized       ErrorKind = "Unauthorized"
	KindMissingState       ErrorKind = "MissingState"
	KindInvalidArgument    ErrorKind = "InvalidArgument"
	KindInternal           ErrorKind = "Internal"
)

var (
	// ErrNotInitialized: the engine, reset or upgrade ran before init, or
	// after a reset removed the token.
	ErrNotInitialized = errors.New("contract has not been initialized")
	// ErrAlreadyInitialized: init was called on an initialized contract.
	ErrAlreadyInitialized = errors.New("contract is already initialized")
	// ErrOutOfRange: day_of_year or extent outside its accepted range.
	ErrOutOfRange = errors.New("value out of range")
	// ErrUnauthorized: the host rejected a required principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingState: persisted state violates the initialization order.
	ErrMissingState = errors.New("contract state is missing")
	// ErrInvalidArgument: an address or code hash argument is empty.
	ErrInvalidArgument = errors.New("invalid argument")
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotInitialized, KindNotInitialized},
	{ErrAlreadyInitialized, KindAlreadyInitialized},
	{ErrOutOfRange, KindOutOfRange},
	{ErrUnauthorized, KindUnauthorized},
	{ErrMissingState, KindMissingState},
	{ErrInvalidArgument, KindInvalidArgument},
}

// KindOf maps an error returned by the contract (possibly wrapped) to its
// kind. Errors outside the taxonomy are KindInternal; nil maps to "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
