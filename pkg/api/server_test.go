package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/contract"
	"github.com/sealcoin/seal/pkg/host"
	"github.com/sealcoin/seal/pkg/journal"
	"github.com/sealcoin/seal/pkg/keys"
	"github.com/sealcoin/seal/pkg/logic"
	"github.com/sealcoin/seal/pkg/oracle"
	"github.com/sealcoin/seal/pkg/statestore"
	"github.com/sealcoin/seal/pkg/token"
)

const genesis int64 = 1_000_000_000 * contract.BaseUnitsPerToken

type apiEnv struct {
	t           *testing.T
	host        *host.Host
	client      *Client
	admin       *keys.KeyPair
	issuer      *keys.KeyPair
	distributor *keys.KeyPair
	token       contract.Address
	nonce       int
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	h, err := host.New(context.Background(), host.Options{
		Backend:   statestore.NewMemoryStore(),
		Artifacts: artifacts.NewMemoryStore(),
	})
	require.NoError(t, err)

	srv := NewServer(h, ServerOptions{})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	master, err := keys.FromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	e := &apiEnv{t: t, host: h, client: NewClient(ts.URL, ts.Client())}
	e.admin, _ = master.Derive("admin")
	e.issuer, _ = master.Derive("issuer")
	e.distributor, _ = master.Derive("distributor")
	return e
}

func (e *apiEnv) nextNonce() string {
	e.nonce++
	return fmt.Sprintf("api-%d", e.nonce)
}

func (e *apiEnv) invoke(fn string, args any, signers ...*keys.KeyPair) (*host.Result, error) {
	e.t.Helper()
	inv, err := host.NewInvocation(fn, args, e.nextNonce())
	require.NoError(e.t, err)
	require.NoError(e.t, inv.Sign(e.host.Address(), time.Minute, signers...))
	return e.client.Invoke(context.Background(), inv)
}

func (e *apiEnv) tokenCall(inv host.TokenInvocation, signers ...*keys.KeyPair) (*host.TokenResult, error) {
	e.t.Helper()
	inv.Nonce = e.nextNonce()
	require.NoError(e.t, inv.Sign(time.Minute, signers...))
	return e.client.InvokeToken(context.Background(), inv)
}

func (e *apiEnv) setup() {
	e.t.Helper()
	res, err := e.tokenCall(host.TokenInvocation{
		Function: host.TokenDeploy,
		Args:     host.TokenArgs{Admin: e.issuer.Address(), Name: "Seal Coin", Symbol: "SEAL"},
	}, e.issuer)
	require.NoError(e.t, err)
	e.token = res.Token

	_, err = e.tokenCall(host.TokenInvocation{
		Token:    e.token,
		Function: host.TokenMint,
		Args:     host.TokenArgs{To: e.distributor.Address(), Amount: genesis},
	}, e.issuer)
	require.NoError(e.t, err)

	_, err = e.invoke(host.FnInit, host.InitArgs{Admin: e.admin.Address(), Token: e.token})
	require.NoError(e.t, err)
}

func (e *apiEnv) update(doy, extent uint32, signers ...*keys.KeyPair) (*host.Result, error) {
	return e.invoke(host.FnUpdateSeaIceExtent, host.UpdateArgs{
		Issuer:      e.issuer.Address(),
		Distributor: e.distributor.Address(),
		DayOfYear:   doy,
		Extent:      extent,
	}, signers...)
}

func TestServer_SupplyScenario(t *testing.T) {
	e := newAPIEnv(t)
	ctx := context.Background()
	e.setup()

	st, err := e.client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.admin.Address(), st.Admin)
	assert.Equal(t, e.token, st.Token)

	res, err := e.update(1, 13923, e.issuer)
	require.NoError(t, err)
	assert.Equal(t, contract.ActionMint, res.Decision.Action)
	assert.NotZero(t, res.Receipt)

	minted := int64(100) * contract.TokensPerExtentUnit * contract.BaseUnitsPerToken
	bal, err := e.client.Balance(ctx, e.token, e.distributor.Address())
	require.NoError(t, err)
	assert.Equal(t, genesis+minted, bal)

	res, err = e.update(1, 13833, e.issuer, e.distributor)
	require.NoError(t, err)
	assert.Equal(t, contract.ActionNoOp, res.Decision.Action)

	res, err = e.update(1, 13723, e.distributor)
	require.NoError(t, err)
	assert.Equal(t, contract.ActionBurn, res.Decision.Action)

	bal, err = e.client.Balance(ctx, e.token, e.distributor.Address())
	require.NoError(t, err)
	assert.Equal(t, genesis, bal)
}

func TestServer_ErrorsMapBackToSentinels(t *testing.T) {
	e := newAPIEnv(t)

	_, err := e.update(1, 14000, e.issuer)
	assert.ErrorIs(t, err, contract.ErrNotInitialized)

	e.setup()

	_, err = e.update(0, 14000, e.issuer)
	assert.ErrorIs(t, err, contract.ErrOutOfRange)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnprocessableEntity, re.Problem.Status)

	// mint needs the issuer
	_, err = e.update(1, 14000, e.distributor)
	assert.ErrorIs(t, err, contract.ErrUnauthorized)

	_, err = e.invoke(host.FnInit, host.InitArgs{Admin: e.admin.Address(), Token: e.token})
	assert.ErrorIs(t, err, contract.ErrAlreadyInitialized)

	inv, err := host.NewInvocation(host.FnUpdateSeaIceExtent, host.UpdateArgs{
		Issuer: e.issuer.Address(), Distributor: e.distributor.Address(), DayOfYear: 1, Extent: 14000,
	}, "fixed")
	require.NoError(t, err)
	require.NoError(t, inv.Sign(e.host.Address(), time.Minute, e.issuer))
	_, err = e.client.Invoke(context.Background(), inv)
	require.NoError(t, err)
	_, err = e.client.Invoke(context.Background(), inv)
	assert.ErrorIs(t, err, host.ErrReplay)

	_, err = e.invoke("mint_forever", nil)
	assert.ErrorIs(t, err, host.ErrUnknownFunction)
}

func TestServer_VersionAndUpgrade(t *testing.T) {
	e := newAPIEnv(t)
	ctx := context.Background()
	e.setup()

	v, err := e.client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, contract.DefaultVersion, v.Version)
	assert.Equal(t, e.host.Address(), v.Contract)
	assert.Equal(t, logic.DefaultRevision, v.Logic.Revision)

	b := logic.Default()
	b.Revision = "1.1.0"
	b.Version = contract.DefaultVersion + 1
	hash, err := e.client.PublishLogic(ctx, b)
	require.NoError(t, err)

	res, err := e.invoke(host.FnUpgrade, host.UpgradeArgs{CodeHash: hash}, e.admin)
	require.NoError(t, err)
	require.NotNil(t, res.Logic)
	assert.Equal(t, hash, res.Logic.Hash)

	v, err = e.client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, contract.DefaultVersion+1, v.Version)

	// the version function answers through invoke too
	res, err = e.invoke(host.FnVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, contract.DefaultVersion+1, res.Version)

	b.Revision = "1.0.5"
	older, err := e.client.PublishLogic(ctx, b)
	require.NoError(t, err)
	_, err = e.invoke(host.FnUpgrade, host.UpgradeArgs{CodeHash: older}, e.admin)
	assert.ErrorIs(t, err, logic.ErrDowngrade)

	_, err = e.invoke(host.FnUpgrade, host.UpgradeArgs{CodeHash: artifacts.Digest([]byte("nope"))}, e.admin)
	assert.ErrorIs(t, err, host.ErrLogicNotFound)
}

func TestServer_PublishRejectsInvalidBundle(t *testing.T) {
	e := newAPIEnv(t)
	b := logic.Default()
	b.Revision = "not-semver"
	_, err := e.client.PublishLogic(context.Background(), b)
	assert.ErrorIs(t, err, logic.ErrInvalidBundle)

	srv := NewServer(e.host, ServerOptions{})
	defer srv.Close()
	w := httptest.NewRecorder()
	body := `{"revision":"1.2.0","version":2,"baseline":{"days":[]},"extra":true}`
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/logic", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Journal(t *testing.T) {
	e := newAPIEnv(t)
	e.setup()
	_, err := e.update(367, 14000, e.issuer)
	require.Error(t, err)

	entries, err := e.client.Journal(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, journal.StatusFailed, entries[0].Receipt.Status)
	assert.Equal(t, "OutOfRange", entries[0].Receipt.ErrorKind)
	assert.Equal(t, host.FnInit, entries[1].Receipt.Function)
	assert.Greater(t, entries[0].Sequence, entries[1].Sequence)
}

func TestServer_RejectsMalformedBodies(t *testing.T) {
	e := newAPIEnv(t)
	srv := NewServer(e.host, ServerOptions{})
	defer srv.Close()

	for _, body := range []string{`{`, `{"function":"init","bogus":1}`, `{}`} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/invoke", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/journal?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/invoke", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_UnknownTokenBalance(t *testing.T) {
	e := newAPIEnv(t)
	_, err := e.client.Balance(context.Background(), host.TokenAddress("NOPE"), e.issuer.Address())
	assert.ErrorIs(t, err, token.ErrUnknownToken)
}

func TestClient_DrivesSubmitter(t *testing.T) {
	e := newAPIEnv(t)
	e.setup()
	ctx := context.Background()
	jan1 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s, err := oracle.NewSubmitter(oracle.StaticSource{Date: jan1, DayOfYear: 1, Extent: 13923}, e.client, oracle.Config{
		Contract:    e.host.Address(),
		Issuer:      e.issuer,
		Distributor: e.distributor,
		Clock:       func() time.Time { return jan1 },
		Limiter:     rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, oracle.OutcomeSubmitted, res.Outcome)

	// a second submitter hits the replay guard over HTTP
	s2, err := oracle.NewSubmitter(oracle.StaticSource{Date: jan1, DayOfYear: 1, Extent: 13923}, e.client, oracle.Config{
		Contract:    e.host.Address(),
		Issuer:      e.issuer,
		Distributor: e.distributor,
		Clock:       func() time.Time { return jan1 },
		Limiter:     rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)
	res, err = s2.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, oracle.OutcomeAlreadyDone, res.Outcome)
}
