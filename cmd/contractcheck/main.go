// Command contractcheck keeps the contract logic free of I/O and
// nondeterminism.
//
// It parses the non-test Go files of the contract packages and fails when
// one imports a package that could reach the network, the filesystem, the
// clock, randomness, or the host that embeds it.
//
// Usage:
//
//	go run ./cmd/contractcheck [-root <module-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// rule restricts the imports of one package directory.
type rule struct {
	dir       string
	forbidden []string
}

const modulePath = "github.com/sealcoin/seal/"

var rules = []rule{
	{
		dir: "pkg/contract",
		forbidden: []string{
			"net", "os", "time", "math/rand", "crypto/rand", "database/sql", "unsafe", "syscall",
			modulePath + "pkg/host",
			modulePath + "pkg/statestore",
			modulePath + "pkg/token",
			modulePath + "pkg/api",
			modulePath + "pkg/oracle",
		},
	},
	{
		dir: "pkg/baseline",
		forbidden: []string{
			"net", "math/rand", "crypto/rand", "database/sql", "unsafe",
			modulePath + "pkg/",
		},
	},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("contractcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", ".", "module root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	violations, err := check(*root, rules)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(stdout, "VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n%d forbidden import(s) in contract packages\n", len(violations))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "contract packages import nothing forbidden")
	return 0
}

// check returns one line per forbidden import found under root.
func check(root string, rules []rule) ([]string, error) {
	var violations []string
	fset := token.NewFileSet()
	for _, r := range rules {
		dir := filepath.Join(root, filepath.FromSlash(r.dir))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			path := filepath.Join(dir, name)
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			for _, imp := range f.Imports {
				ip := strings.Trim(imp.Path.Value, `"`)
				if bad, ok := matches(ip, r.forbidden); ok {
					pos := fset.Position(imp.Pos())
					violations = append(violations, fmt.Sprintf("%s/%s:%d imports %q (forbidden: %q)", r.dir, name, pos.Line, ip, bad))
				}
			}
		}
	}
	return violations, nil
}

// matches reports whether ip is one of forbidden or lives under it. An
// entry ending in "/" matches by prefix only.
func matches(ip string, forbidden []string) (string, bool) {
	for _, f := range forbidden {
		if strings.HasSuffix(f, "/") {
			if strings.HasPrefix(ip, f) {
				return f, true
			}
			continue
		}
		if ip == f || strings.HasPrefix(ip, f+"/") {
			return f, true
		}
	}
	return "", false
}
