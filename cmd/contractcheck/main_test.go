package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractPackagesArePure(t *testing.T) {
	violations, err := check(filepath.Join("..", ".."), rules)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCheck_ReportsForbiddenImports(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pkg", "contract")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "baseline"), 0o755))
	src := "package contract\n\nimport (\n\t\"fmt\"\n\t\"net/http\"\n\t\"time\"\n)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak.go"), []byte(src), 0o600))
	// tests may import anything
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak_test.go"), []byte("package contract\n\nimport \"os\"\n"), 0o600))

	violations, err := check(root, rules[:1])
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0], `"net/http"`)
	assert.Contains(t, violations[1], `"time"`)

	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{"-root", root}, &out, &out))
}

func TestMatches(t *testing.T) {
	forbidden := []string{"net", modulePath + "pkg/"}
	cases := map[string]bool{
		"net":                         true,
		"net/http":                    true,
		"network":                     false,
		"context":                     false,
		modulePath + "pkg/host":       true,
		"github.com/sealcoin/sealant": false,
	}
	for ip, want := range cases {
		_, got := matches(ip, forbidden)
		assert.Equal(t, want, got, ip)
	}
}
