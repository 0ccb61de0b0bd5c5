// Package api serves the contract host over HTTP. Errors are RFC 7807 problem details.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/token"
)

const problemTypeBase = "https://sealcoin.dev/errors/"

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	// Instance is the request path.
	Instance string `json:"instance,omitempty"`
	// Kind names the error so clients can map it back to a sentinel.
	Kind string `json:"kind,omitempty"`
}

func (p *ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// Error kinds outside the contract taxonomy.
const (
	KindReplay              = host.KindReplay
	KindNonceRequired       = host.KindNonceRequired
	KindUnknownFunction     = host.KindUnknownFunction
	KindLogicNotFound       = host.KindLogicNotFound
	KindDowngrade           = host.KindDowngrade
	KindInvalidBundle       = host.KindInvalidBundle
	KindUnknownToken        = host.KindUnknownToken
	KindTokenExists         = host.KindTokenExists
	KindInvalidAmount       = host.KindInvalidAmount
	KindInsufficientBalance = host.KindInsufficientBalance
	KindOverflow            = host.KindOverflow
	KindRateLimited         = "RateLimited"
)

type problemKind struct {
	err    error
	kind   string
	status int
}

// Host and token errors are matched before the contract taxonomy: some of
// them travel wrapped inside a contract error.
var problemKinds = []problemKind{
	{host.ErrReplay, KindReplay, http.StatusConflict},
	{host.ErrNonceRequired, KindNonceRequired, http.StatusBadRequest},
	{host.ErrUnknownFunction, KindUnknownFunction, http.StatusBadRequest},
	{host.ErrLogicNotFound, KindLogicNotFound, http.StatusNotFound},
	{logic.ErrDowngrade, KindDowngrade, http.StatusConflict},
	{logic.ErrInvalidBundle, KindInvalidBundle, http.StatusBadRequest},
	{token.ErrUnknownToken, KindUnknownToken, http.StatusNotFound},
	{token.ErrTokenExists, KindTokenExists, http.StatusConflict},
	{token.ErrInvalidAmount, KindInvalidAmount, http.StatusBadRequest},
	{token.ErrInsufficientBalance, KindInsufficientBalance, http.StatusUnprocessableEntity},
	{token.ErrOverflow, KindOverflow, http.StatusUnprocessableEntity},
	{contract.ErrNotInitialized, string(contract.KindNotInitialized), http.StatusConflict},
	{contract.ErrAlreadyInitialized, string(contract.KindAlreadyInitialized), http.StatusConflict},
	{contract.ErrOutOfRange, string(contract.KindOutOfRange), http.StatusUnprocessableEntity},
	{contract.ErrUnauthorized, string(contract.KindUnauthorized), http.StatusForbidden},
	{contract.ErrInvalidArgument, string(contract.KindInvalidArgument), http.StatusBadRequest},
	{contract.ErrMissingState, string(contract.KindMissingState), http.StatusInternalServerError},
}

// classify returns the kind and status for err, or ok=false when err is not
// a known domain error.
func classify(err error) (problemKind, bool) {
	for _, p := range problemKinds {
		if errors.Is(err, p.err) {
			return p, true
		}
	}
	return problemKind{}, false
}

// sentinelFor is the inverse of classify, used by Client.
func sentinelFor(kind string) error {
	for _, p := range problemKinds {
		if p.kind == kind {
			return p.err
		}
	}
	return nil
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, r *http.Request, status int, kind, title, detail string) {
	problem := &ProblemDetail{
		Type:   problemTypeBase + fmt.Sprintf("%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
		Kind:   kind,
	}
	if kind != "" {
		problem.Type = problemTypeBase + kind
	}
	if r != nil {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteDomainError maps an error returned by the host to a problem
// response. Unknown errors become a sanitized 500.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	p, ok := classify(err)
	if !ok {
		WriteInternal(w, r, err)
		return
	}
	if p.status >= http.StatusInternalServerError {
		slog.Error("contract state error", "path", r.URL.Path, "error", err)
		WriteError(w, r, p.status, p.kind, http.StatusText(p.status), "persisted contract state is inconsistent")
		return
	}
	WriteError(w, r, p.status, p.kind, http.StatusText(p.status), err.Error())
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, string(contract.KindInvalidArgument), "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusNotFound, "", "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, KindRateLimited, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, r, http.StatusInternalServerError, string(contract.KindInternal), "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
