package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/sealcoin/seal/pkg/baseline"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/oracle"
)

// runSubmitCmd feeds NSIDC readings to the host, once or on an interval.
func runSubmitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	source := cmd.String("source", "", "NSIDC daily extent CSV URL (default $SEAL_ORACLE_SOURCE)")
	once := cmd.Bool("once", false, "run a single tick and exit")
	guard := cmd.String("guard", "", "CEL guard expression (default $SEAL_ORACLE_GUARD)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	oc := s.cfg.Oracle
	if *source != "" {
		oc.Source = *source
	}
	if *guard != "" {
		oc.Guard = *guard
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: s.cfg.SlogLevel()}))

	issuer, err := s.key(roleIssuer)
	if err != nil {
		return fail(stderr, err)
	}
	distributor, err := s.key(roleDistributor)
	if err != nil {
		return fail(stderr, err)
	}

	// the pre-submission guard evaluates against the operator's copy of the
	// deployed baseline
	table := baseline.Default()
	if s.cfg.BaselinePath != "" {
		if table, err = baseline.Load(s.cfg.BaselinePath); err != nil {
			return fail(stderr, err)
		}
	}
	g, err := oracle.NewGuard(oc.Guard)
	if err != nil {
		return fail(stderr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := s.client.Version(ctx)
	if err != nil {
		return fail(stderr, fmt.Errorf("reach host at %s: %w", oc.APIURL, err))
	}

	sub, err := oracle.NewSubmitter(oracle.NewNSIDCSource(oc.Source), s.client, oracle.Config{
		Contract:    v.Contract,
		Issuer:      issuer,
		Distributor: distributor,
		Engine:      contract.NewEngine(table),
		Guard:       g,
		Genesis:     oc.Genesis,
		Volatile:    oc.Volatile,
		Interval:    oc.Interval,
		Logger:      logger.With("component", "oracle"),
	})
	if err != nil {
		return fail(stderr, err)
	}

	if *once {
		res, err := sub.Tick(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, map[string]any{
			"outcome":     res.Outcome,
			"day_of_year": res.Reading.DayOfYear,
			"extent":      res.Reading.Extent,
			"action":      res.Decision.Action,
			"amount":      res.Decision.Amount(),
		})
		return 0
	}

	log.Printf("[seal] oracle: submitting %s to %s every %s", oc.Source, oc.APIURL, oc.Interval)
	if err := sub.Run(ctx); err != nil {
		return fail(stderr, err)
	}
	return 0
}
