package main

import (
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/sealcoin/seal/pkg/config"
	"github.com/sealcoin/seal/pkg/keys"
)

// runKeysCmd loads each named key, generating missing ones outside
// production, and prints its address.
func runKeysCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keys", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	dir := cmd.String("keys", "", "key directory (default $SEAL_KEYS_DIR)")
	jsonOut := cmd.Bool("json", false, "print addresses as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(stderr, err)
	}
	if *dir != "" {
		cfg.KeysDir = *dir
	}
	names := cmd.Args()
	if len(names) == 0 {
		names = []string{roleAdmin, roleIssuer, roleDistributor}
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		path := keyPath(cfg, name)
		k, created, err := keys.LoadOrGenerate(path, !cfg.Production)
		if err != nil {
			return fail(stderr, fmt.Errorf("key %q: %w", name, err))
		}
		if created {
			log.Printf("[seal] keys: generated %s at %s", name, path)
		}
		out[name] = string(k.Address())
		if !*jsonOut {
			_, _ = fmt.Fprintf(stdout, "%-12s %s\n", name, k.Address())
		}
	}
	if *jsonOut {
		printJSON(stdout, out)
	}
	return 0
}
