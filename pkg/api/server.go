package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/logic"
)

const maxBodyBytes = 1 << 20

// VersionResponse is the body of GET /v1/version.
type VersionResponse struct {
	Contract contract.Address `json:"contract"`
	Version  uint32           `json:"version"`
	Logic    host.LogicInfo   `json:"logic"`
}

// StateResponse is the body of GET /v1/state.
type StateResponse struct {
	contract.State
	Initialized bool `json:"initialized"`
}

// BalanceResponse is the body of GET /v1/tokens/{token}/balances/{holder}.
type BalanceResponse struct {
	Token   contract.Address `json:"token"`
	Holder  contract.Address `json:"holder"`
	Balance int64            `json:"balance"`
}

// PublishResponse is the body of POST /v1/logic.
type PublishResponse struct {
	Hash     string `json:"hash"`
	Revision string `json:"revision"`
}

// JournalResponse is the body of GET /v1/journal.
type JournalResponse struct {
	Head    uint64          `json:"head"`
	Entries []journal.Entry `json:"entries"`
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// RateLimitRPS per client IP; zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// Server exposes a host over HTTP.
type Server struct {
	host    *host.Host
	limiter *RateLimiter
	handler http.Handler
	logger  *slog.Logger
}

func NewServer(h *host.Host, opts ServerOptions) *Server {
	s := &Server{
		host:    h,
		limiter: NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "api")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	mux.HandleFunc("POST /v1/token/invoke", s.handleTokenInvoke)
	mux.HandleFunc("POST /v1/logic", s.handlePublishLogic)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/tokens/{token}/balances/{holder}", s.handleBalance)
	mux.HandleFunc("GET /v1/journal", s.handleJournal)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.handler = s.limiter.Middleware(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases the rate limiter.
func (s *Server) Close() { s.limiter.Close() }

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var inv host.Invocation
	if !decodeBody(w, r, &inv) {
		return
	}
	if inv.Function == "" {
		WriteBadRequest(w, r, "function is required")
		return
	}
	res, err := s.host.Invoke(r.Context(), inv)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTokenInvoke(w http.ResponseWriter, r *http.Request) {
	var inv host.TokenInvocation
	if !decodeBody(w, r, &inv) {
		return
	}
	res, err := s.host.InvokeToken(r.Context(), inv)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePublishLogic(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "request body too large")
		return
	}
	b, err := logic.Decode(data)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	hash, err := s.host.PublishLogic(r.Context(), b)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PublishResponse{Hash: hash, Revision: b.Revision})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := s.host.ActiveLogic()
	writeJSON(w, http.StatusOK, VersionResponse{Contract: s.host.Address(), Version: info.Version, Logic: info})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.host.State(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{State: st, Initialized: st.Initialized()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	tok := contract.Address(r.PathValue("token"))
	holder := contract.Address(r.PathValue("holder"))
	bal, err := s.host.Balance(r.Context(), tok, holder)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Token: tok, Holder: holder, Balance: bal})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	j := s.host.Journal()
	if j == nil {
		WriteNotFound(w, r, "journal is disabled")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			WriteBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	seq, _, err := j.Head(r.Context())
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	entries, err := j.List(r.Context(), limit)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, JournalResponse{Head: seq, Entries: entries})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, "", "Request Entity Too Large", "request body exceeds 1 MiB")
			return false
		}
		WriteBadRequest(w, r, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
