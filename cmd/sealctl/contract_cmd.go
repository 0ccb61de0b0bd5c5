package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/sealcoin/seal/pkg/baseline"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/logic"
)

func runDeployTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("deploy-token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	symbol := cmd.String("symbol", defaultSymbol, "token symbol")
	name := cmd.String("name", "Seal Coin", "token name")
	genesis := cmd.Int64("genesis", -1, "whole tokens minted to the distributor (default $SEAL_TOKEN_GENESIS)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	issuer, err := s.key(roleIssuer)
	if err != nil {
		return fail(stderr, err)
	}
	distributor, err := s.key(roleDistributor)
	if err != nil {
		return fail(stderr, err)
	}
	if *genesis < 0 {
		*genesis = s.cfg.Oracle.Genesis
	}

	res, err := s.invokeToken(host.TokenInvocation{
		Function: host.TokenDeploy,
		Args:     host.TokenArgs{Admin: issuer.Address(), Name: *name, Symbol: *symbol},
	}, issuer)
	if err != nil {
		return fail(stderr, err)
	}
	if *genesis > 0 {
		_, err = s.invokeToken(host.TokenInvocation{
			Token:    res.Token,
			Function: host.TokenMint,
			Args:     host.TokenArgs{To: distributor.Address(), Amount: *genesis * contract.BaseUnitsPerToken},
		}, issuer)
		if err != nil {
			return fail(stderr, fmt.Errorf("mint genesis: %w", err))
		}
	}
	printJSON(stdout, map[string]any{
		"token":       res.Token,
		"admin":       issuer.Address(),
		"distributor": distributor.Address(),
		"genesis":     *genesis,
	})
	return 0
}

func runInitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	admin := cmd.String("admin", roleAdmin, "admin key name or G-address")
	tok := cmd.String("token", "", "token symbol or C-address (default $SEAL_TOKEN or SEAL)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	adminAddr, err := s.address(*admin)
	if err != nil {
		return fail(stderr, err)
	}
	res, err := s.invoke(host.FnInit, host.InitArgs{Admin: adminAddr, Token: s.token(*tok)})
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runUpdateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("update", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	day := cmd.Uint("day", 0, "day of year (1-366)")
	extent := cmd.Uint("extent", 0, "sea-ice extent in thousand km²")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *day == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --day is required")
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	issuer, err := s.key(roleIssuer)
	if err != nil {
		return fail(stderr, err)
	}
	distributor, err := s.key(roleDistributor)
	if err != nil {
		return fail(stderr, err)
	}
	res, err := s.invoke(host.FnUpdateSeaIceExtent, host.UpdateArgs{
		Issuer:      issuer.Address(),
		Distributor: distributor.Address(),
		DayOfYear:   uint32(*day),
		Extent:      uint32(*extent),
	}, issuer, distributor)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runResetCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("reset", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	admin, err := s.key(roleAdmin)
	if err != nil {
		return fail(stderr, err)
	}
	res, err := s.invoke(host.FnReset, nil, admin)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runUpgradeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	hash := cmd.String("hash", "", "published logic hash (sha256:...)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *hash == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --hash is required")
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	admin, err := s.key(roleAdmin)
	if err != nil {
		return fail(stderr, err)
	}
	res, err := s.invoke(host.FnUpgrade, host.UpgradeArgs{CodeHash: *hash}, admin)
	if errors.Is(err, logic.ErrDowngrade) {
		_, _ = fmt.Fprintln(stderr, "Refused: the published revision is older than the active one.")
		return 1
	}
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runPublishLogicCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("publish-logic", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	revision := cmd.String("revision", "", "semantic revision of the bundle (required)")
	version := cmd.Uint("version", 0, "version the logic reports (required)")
	table := cmd.String("baseline", "", "baseline table file, JSON or YAML (default $SEAL_BASELINE or built-in)")
	desc := cmd.String("description", "", "free-form description")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *revision == "" || *version == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --revision and --version are required")
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	path := *table
	if path == "" {
		path = s.cfg.BaselinePath
	}
	t := baseline.Default()
	if path != "" {
		if t, err = baseline.Load(path); err != nil {
			return fail(stderr, err)
		}
	}

	b := logic.Bundle{
		Revision:    *revision,
		Version:     uint32(*version),
		Description: *desc,
		Baseline:    t.Document(),
	}
	hash, err := s.client.PublishLogic(context.Background(), b)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, map[string]any{"hash": hash, "revision": b.Revision, "version": b.Version})
	return 0
}

func runVersionCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("version", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	v, err := s.client.Version(context.Background())
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, v)
	return 0
}

func runStateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("state", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	st, err := s.client.State(context.Background())
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, st)
	return 0
}

func runBalanceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("balance", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	holder := cmd.String("holder", roleDistributor, "key name or G-address")
	tok := cmd.String("token", "", "token symbol or C-address (default $SEAL_TOKEN or SEAL)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	addr, err := s.address(*holder)
	if err != nil {
		return fail(stderr, err)
	}
	t := s.token(*tok)
	bal, err := s.client.Balance(context.Background(), t, addr)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, map[string]any{
		"token":   t,
		"holder":  addr,
		"balance": bal,
		"tokens":  float64(bal) / float64(contract.BaseUnitsPerToken),
	})
	return 0
}

func runJournalCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("journal", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf := addClientFlags(cmd)
	limit := cmd.Int("limit", 20, "number of receipts, newest first")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	s, err := cf.open(stdout, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	entries, err := s.client.Journal(context.Background(), *limit)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, entries)
	return 0
}
