package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sealcoin/seal/pkg/api"
	"github.com/sealcoin/seal/pkg/config"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/keys"
)

const (
	authTTL         = 5 * time.Minute
	defaultSymbol   = "SEAL"
	keyFileSuffix   = ".key"
	roleAdmin       = "admin"
	roleIssuer      = "issuer"
	roleDistributor = "distributor"
)

// session is what a client command works with after flag parsing.
type session struct {
	cfg    *config.Config
	client *api.Client
	stdout io.Writer
	stderr io.Writer
}

// clientFlags registers the flags every client command shares.
type clientFlags struct {
	api     *string
	keysDir *string
}

func addClientFlags(cmd *flag.FlagSet) clientFlags {
	return clientFlags{
		api:     cmd.String("api", "", "host API URL (default $SEAL_API_URL)"),
		keysDir: cmd.String("keys", "", "key directory (default $SEAL_KEYS_DIR)"),
	}
}

func (f clientFlags) open(stdout, stderr io.Writer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *f.api != "" {
		cfg.Oracle.APIURL = *f.api
	}
	if *f.keysDir != "" {
		cfg.KeysDir = *f.keysDir
	}
	return &session{
		cfg:    cfg,
		client: api.NewClient(cfg.Oracle.APIURL, nil),
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func keyPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.KeysDir, name+keyFileSuffix)
}

func (s *session) key(name string) (*keys.KeyPair, error) {
	k, err := keys.Load(keyPath(s.cfg, name))
	if err != nil {
		return nil, fmt.Errorf("key %q: %w (run `sealctl keys %s`)", name, err, name)
	}
	return k, nil
}

// address accepts a G- or C-address as is and otherwise treats ref as a key
// name.
func (s *session) address(ref string) (contract.Address, error) {
	addr := contract.Address(ref)
	if keys.IsContract(addr) {
		return addr, nil
	}
	if _, err := keys.ParseAccount(addr); err == nil {
		return addr, nil
	}
	k, err := s.key(ref)
	if err != nil {
		return "", err
	}
	return k.Address(), nil
}

func (s *session) token(ref string) contract.Address {
	if ref == "" {
		ref = s.cfg.Oracle.Token
	}
	if ref == "" {
		return host.TokenAddress(defaultSymbol)
	}
	if keys.IsContract(contract.Address(ref)) {
		return contract.Address(ref)
	}
	return host.TokenAddress(ref)
}

// invoke signs and submits a contract call.
func (s *session) invoke(function string, args any, signers ...*keys.KeyPair) (*host.Result, error) {
	inv, err := host.NewInvocation(function, args, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if len(signers) > 0 {
		v, err := s.client.Version(context.Background())
		if err != nil {
			return nil, err
		}
		if err := inv.Sign(v.Contract, authTTL, signers...); err != nil {
			return nil, err
		}
	}
	return s.client.Invoke(context.Background(), inv)
}

func (s *session) invokeToken(inv host.TokenInvocation, signers ...*keys.KeyPair) (*host.TokenResult, error) {
	inv.Nonce = uuid.NewString()
	if err := inv.Sign(authTTL, signers...); err != nil {
		return nil, err
	}
	return s.client.InvokeToken(context.Background(), inv)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(w io.Writer, err error) int {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
