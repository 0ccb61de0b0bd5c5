package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/keys"
)

// Ledger is what the submitter needs from the host, in process or over
// HTTP.
type Ledger interface {
	State(ctx context.Context) (contract.State, error)
	Balance(ctx context.Context, token, holder contract.Address) (int64, error)
	Invoke(ctx context.Context, inv host.Invocation) (*host.Result, error)
}

// Outcome of one Tick.
type Outcome string

const (
	OutcomeSubmitted   Outcome = "submitted"
	OutcomeStale       Outcome = "stale"
	OutcomeAlreadyDone Outcome = "already_executed"
	OutcomeGuarded     Outcome = "guarded"
)

// TickResult describes what a Tick did.
type TickResult struct {
	Outcome  Outcome
	Reading  Reading
	Decision contract.SupplyDecision
	Supply   int64
	Result   *host.Result
}

// Config configures a Submitter.
type Config struct {
	Contract    contract.Address
	Issuer      *keys.KeyPair
	Distributor *keys.KeyPair
	// Engine mirrors the deployed logic for the pre-submission guard.
	Engine *contract.Engine
	Guard  *Guard
	// Genesis and Volatile are whole tokens.
	Genesis  int64
	Volatile int64

	Interval time.Duration
	Backoff  BackoffPolicy
	Limiter  *rate.Limiter
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Submitter submits at most one reading per day of year, and only a
// reading taken on the current day.
type Submitter struct {
	src    Source
	ledger Ledger
	cfg    Config

	mu           sync.Mutex
	lastExecuted uint32
}

func NewSubmitter(src Source, ledger Ledger, cfg Config) (*Submitter, error) {
	if cfg.Issuer == nil || cfg.Distributor == nil {
		return nil, fmt.Errorf("oracle: issuer and distributor keys are required")
	}
	if cfg.Contract == "" {
		return nil, fmt.Errorf("oracle: contract address is required")
	}
	if cfg.Engine == nil {
		cfg.Engine = contract.NewEngine(nil)
	}
	if cfg.Guard == nil {
		g, err := NewGuard("")
		if err != nil {
			return nil, err
		}
		cfg.Guard = g
	}
	if cfg.Genesis == 0 {
		cfg.Genesis = 1_000_000_000
	}
	if cfg.Volatile == 0 {
		cfg.Volatile = 500_000_000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "oracle")
	}
	return &Submitter{src: src, ledger: ledger, cfg: cfg}, nil
}

// LastExecuted is the day of year last submitted successfully, or 0.
func (s *Submitter) LastExecuted() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExecuted
}

// Tick fetches the latest reading and submits it if it is today's and has
// not been submitted yet. Only a successful submission marks the day.
func (s *Submitter) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock().UTC()
	doy := uint32(now.YearDay())
	log := s.cfg.Logger

	rd, err := s.src.Latest(ctx)
	if err != nil {
		return TickResult{}, err
	}
	res := TickResult{Reading: rd}

	if rd.DayOfYear != doy {
		log.InfoContext(ctx, "reading is not from today", "reading_doy", rd.DayOfYear, "today", doy)
		res.Outcome = OutcomeStale
		return res, nil
	}
	if rd.DayOfYear == s.lastExecuted {
		res.Outcome = OutcomeAlreadyDone
		return res, nil
	}

	d, err := s.cfg.Engine.Evaluate(rd.DayOfYear, rd.Extent)
	if err != nil {
		return res, err
	}
	res.Decision = d

	st, err := s.ledger.State(ctx)
	if err != nil {
		return res, fmt.Errorf("oracle: read contract state: %w", err)
	}
	if !st.Initialized() {
		return res, contract.ErrNotInitialized
	}
	supply, err := s.ledger.Balance(ctx, st.Token, s.cfg.Distributor.Address())
	if err != nil {
		return res, fmt.Errorf("oracle: read supply: %w", err)
	}
	res.Supply = supply

	in := GuardInput{
		Supply:    supply / contract.BaseUnitsPerToken,
		Projected: (supply + d.DeltaScaled) / contract.BaseUnitsPerToken,
		Genesis:   s.cfg.Genesis,
		Volatile:  s.cfg.Volatile,
		DayOfYear: d.DayOfYear,
		Extent:    d.Extent,
		Baseline:  d.Baseline,
		Action:    string(d.Action),
	}
	ok, err := s.cfg.Guard.Allow(in)
	if err != nil {
		return res, err
	}
	if !ok {
		log.WarnContext(ctx, "guard refused submission", "guard", s.cfg.Guard.String(), "supply", in.Supply, "projected", in.Projected)
		res.Outcome = OutcomeGuarded
		return res, nil
	}

	inv, err := host.NewInvocation(host.FnUpdateSeaIceExtent, host.UpdateArgs{
		Issuer:      s.cfg.Issuer.Address(),
		Distributor: s.cfg.Distributor.Address(),
		DayOfYear:   rd.DayOfYear,
		Extent:      rd.Extent,
	}, fmt.Sprintf("oracle/%d/%d", now.Year(), doy))
	if err != nil {
		return res, err
	}
	if err := inv.Sign(s.cfg.Contract, 10*time.Minute, s.cfg.Issuer, s.cfg.Distributor); err != nil {
		return res, err
	}

	out, err := s.ledger.Invoke(ctx, inv)
	if errors.Is(err, host.ErrReplay) {
		// submitted by an earlier run today
		s.lastExecuted = doy
		res.Outcome = OutcomeAlreadyDone
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("oracle: submit: %w", err)
	}
	s.lastExecuted = doy
	res.Outcome = OutcomeSubmitted
	res.Result = out
	if out.Decision != nil {
		res.Decision = *out.Decision
	}
	log.InfoContext(ctx, "reading submitted",
		"day_of_year", rd.DayOfYear,
		"extent", rd.Extent,
		"action", res.Decision.Action,
		"amount", res.Decision.Amount(),
	)
	return res, nil
}

// Run ticks every Interval until ctx is done, backing off after failures.
func (s *Submitter) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return nilIfDone(ctx, err)
		}
		wait := s.cfg.Interval
		if _, err := s.Tick(ctx); err != nil {
			attempt++
			wait = s.cfg.Backoff.Delay(string(s.cfg.Contract), attempt)
			s.cfg.Logger.ErrorContext(ctx, "tick failed", "attempt", attempt, "retry_in", wait, "error", err)
		} else {
			attempt = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nilIfDone(ctx, ctx.Err())
		case <-t.C:
		}
	}
}

func nilIfDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
