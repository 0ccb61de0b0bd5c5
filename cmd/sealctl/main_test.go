package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealcoin/seal/pkg/api"
	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/config"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/statestore"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"sealctl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := run(t, args...)
	require.Equal(t, 0, code, "sealctl %s: %s", strings.Join(args, " "), errOut)
	return out
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

// startHost serves an in-memory host and points the CLI at it.
func startHost(t *testing.T) *host.Host {
	t.Helper()
	h, err := host.New(context.Background(), host.Options{
		Backend:   statestore.NewMemoryStore(),
		Artifacts: artifacts.NewMemoryStore(),
	})
	require.NoError(t, err)
	srv := api.NewServer(h, api.ServerOptions{})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	t.Setenv("SEAL_CONFIG", "")
	t.Setenv("SEAL_PRODUCTION", "")
	t.Setenv("SEAL_TOKEN", "")
	t.Setenv("SEAL_BASELINE", "")
	t.Setenv("SEAL_API_URL", ts.URL)
	t.Setenv("SEAL_KEYS_DIR", t.TempDir())
	return h
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "update")
	assert.Contains(t, out, "submit")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")

	code, _, _ = run(t)
	assert.Equal(t, 2, code)
}

func TestKeysCmd_GenerateThenReload(t *testing.T) {
	t.Setenv("SEAL_CONFIG", "")
	t.Setenv("SEAL_PRODUCTION", "")
	t.Setenv("SEAL_KEYS_DIR", t.TempDir())

	first := decode(t, mustRun(t, "keys", "--json"))
	require.Len(t, first, 3)
	for _, role := range []string{roleAdmin, roleIssuer, roleDistributor} {
		assert.True(t, strings.HasPrefix(first[role].(string), "G"), role)
	}

	second := decode(t, mustRun(t, "keys", "--json"))
	assert.Equal(t, first, second)
}

func TestKeysCmd_ProductionRefusesToGenerate(t *testing.T) {
	t.Setenv("SEAL_CONFIG", "")
	t.Setenv("SEAL_PRODUCTION", "1")
	t.Setenv("SEAL_KEYS_DIR", t.TempDir())

	code, _, errOut := run(t, "keys", "admin")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "admin")
}

func TestContractLifecycle(t *testing.T) {
	h := startHost(t)
	mustRun(t, "keys")

	deployed := decode(t, mustRun(t, "deploy-token", "--genesis", "1000000000"))
	assert.Equal(t, string(host.TokenAddress("SEAL")), deployed["token"])

	mustRun(t, "init")
	st, err := h.State(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Initialized())

	// day 1 baseline is 13823
	res := decode(t, mustRun(t, "update", "--day", "1", "--extent", "13923"))
	decision := res["decision"].(map[string]any)
	assert.Equal(t, string(contract.ActionMint), decision["action"])

	bal := decode(t, mustRun(t, "balance"))
	assert.Equal(t, float64(1_000_010_000), bal["tokens"])

	code, _, errOut := run(t, "update", "--day", "400", "--extent", "13923")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "out of range")

	v := decode(t, mustRun(t, "version"))
	assert.Equal(t, float64(contract.DefaultVersion), v["version"])

	pub := decode(t, mustRun(t, "publish-logic", "--revision", "1.1.0", "--version", "2"))
	hash := pub["hash"].(string)
	mustRun(t, "upgrade", "--hash", hash)
	assert.Equal(t, uint32(2), h.Version())

	mustRun(t, "reset")
	st, err = h.State(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Initialized())

	out := mustRun(t, "journal", "--limit", "3")
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 3)
}

func TestUpgradeCmd_RequiresHash(t *testing.T) {
	startHost(t)
	code, _, errOut := run(t, "upgrade")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--hash")
}

func TestUpdateCmd_MissingKeys(t *testing.T) {
	startHost(t)
	code, _, errOut := run(t, "update", "--day", "1", "--extent", "13823")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "sealctl keys")
}

func TestSubmitCmd_Once(t *testing.T) {
	startHost(t)
	mustRun(t, "keys")
	mustRun(t, "deploy-token")
	mustRun(t, "init")

	today := time.Now().UTC()
	csv := fmt.Sprintf(" Year, Month, Day,     Extent,    Missing, Source Data\n %d, %02d, %02d, 12.500, 0.000, ['x']\n",
		today.Year(), int(today.Month()), today.Day())
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(csv))
	}))
	defer feed.Close()

	res := decode(t, mustRun(t, "submit", "--once", "--source", feed.URL))
	assert.Equal(t, "submitted", res["outcome"])
	assert.Equal(t, float64(12500), res["extent"])
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{StateBackend: config.BackendMemory}
	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &statestore.MemoryStore{}, b)

	cfg = &config.Config{StateBackend: config.BackendSQLite, DataDir: t.TempDir()}
	b, err = openBackend(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, b.(closer).Close())

	_, err = openBackend(ctx, &config.Config{StateBackend: config.BackendPostgres})
	assert.Error(t, err)

	_, err = openBackend(ctx, &config.Config{StateBackend: "etcd"})
	assert.Error(t, err)
}

func TestAuthorizer(t *testing.T) {
	a, err := authorizer(&config.Config{AuthMode: config.AuthAllowAll})
	require.NoError(t, err)
	assert.IsType(t, host.AllowAll{}, a)

	_, err = authorizer(&config.Config{AuthMode: config.AuthAllowAll, Production: true})
	assert.Error(t, err)

	_, err = authorizer(&config.Config{AuthMode: "trust-me"})
	assert.Error(t, err)
}
