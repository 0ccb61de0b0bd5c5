package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealcoin/seal/pkg/baseline"
)

const (
	admin       Address = "GADMIN"
	tokenAddr   Address = "CTOKEN"
	issuer      Address = "GISSUER"
	distributor Address = "GDISTRIBUTOR"

	genesis int64 = 1_000_000_000 * BaseUnitsPerToken
)

func initialized(t *testing.T) (*Contract, *fakeEnv, *fakeToken) {
	t.Helper()
	c := New(nil)
	env := newFakeEnv()
	require.NoError(t, c.Init(context.Background(), env, admin, tokenAddr))

	tok := env.Token(tokenAddr).(*fakeToken)
	tok.balances[distributor] = genesis
	return c, env, tok
}

func TestVersion(t *testing.T) {
	assert.Equal(t, DefaultVersion, New(nil).Version())
	assert.Equal(t, uint32(7), New(nil, WithVersion(7)).Version())
}

func TestUpdateSeaIceExtent_Scenario(t *testing.T) {
	ctx := context.Background()
	c, env, tok := initialized(t)
	env.allow(issuer, distributor)

	// +100 over the day-1 baseline mints 10K tokens.
	d, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13823+100)
	require.NoError(t, err)
	assert.Equal(t, ActionMint, d.Action)
	assert.Equal(t, int64(100), d.DeltaRaw)
	minted := genesis + 10_000*BaseUnitsPerToken
	assert.Equal(t, minted, tok.balances[distributor])

	// +10 is inside the deadband.
	d, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13823+10)
	require.NoError(t, err)
	assert.Equal(t, ActionNoOp, d.Action)
	assert.Equal(t, minted, tok.balances[distributor])

	// -100 burns the same 10K tokens.
	d, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13823-100)
	require.NoError(t, err)
	assert.Equal(t, ActionBurn, d.Action)
	assert.Equal(t, genesis, tok.balances[distributor])

	assert.Len(t, tok.calls, 2)

	s, err := c.State(ctx, env)
	require.NoError(t, err)
	require.NotNil(t, s.LastReading)
	assert.Equal(t, Reading{DayOfYear: 1, Extent: 13723}, *s.LastReading)
}

func TestUpdateSeaIceExtent_NotInitialized(t *testing.T) {
	c := New(nil)
	env := newFakeEnv()
	env.allow(issuer, distributor)

	_, err := c.UpdateSeaIceExtent(context.Background(), env, issuer, distributor, 1, 14000)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, env.store.data)
}

func TestUpdateSeaIceExtent_RangeEnforcement(t *testing.T) {
	cases := []struct {
		name   string
		doy    uint32
		extent uint32
	}{
		{"doy zero", 0, 13823},
		{"doy 367", 367, 13823},
		{"extent 30001", 1, 30001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, env, tok := initialized(t)
			env.allow(issuer, distributor)
			before := env.store.snapshot()

			_, err := c.UpdateSeaIceExtent(context.Background(), env, issuer, distributor, tc.doy, tc.extent)
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Equal(t, KindOutOfRange, KindOf(err))
			assert.Equal(t, before, env.store.data)
			assert.Empty(t, tok.calls)
		})
	}
}

func TestUpdateSeaIceExtent_BoundsAccepted(t *testing.T) {
	c, env, _ := initialized(t)
	env.allow(issuer, distributor)
	ctx := context.Background()

	_, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 366, 13790)
	assert.NoError(t, err)

	tok := env.Token(tokenAddr).(*fakeToken)
	tok.balances[distributor] = 1 << 60
	_, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 0)
	assert.NoError(t, err)
}

func TestUpdateSeaIceExtent_AuthorizationGating(t *testing.T) {
	ctx := context.Background()

	t.Run("mint needs issuer only", func(t *testing.T) {
		c, env, tok := initialized(t)
		env.allow(distributor)

		_, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 14000)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Empty(t, tok.calls)

		env.deny(distributor)
		env.allow(issuer)
		env.authCalls = nil
		_, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 14000)
		require.NoError(t, err)
		assert.Equal(t, []Address{issuer}, env.authCalls)
	})

	t.Run("burn needs distributor only", func(t *testing.T) {
		c, env, tok := initialized(t)
		env.allow(issuer)

		_, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13000)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Empty(t, tok.calls)

		env.deny(issuer)
		env.allow(distributor)
		env.authCalls = nil
		_, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13000)
		require.NoError(t, err)
		assert.Equal(t, []Address{distributor}, env.authCalls)
	})

	t.Run("noop needs nobody", func(t *testing.T) {
		c, env, tok := initialized(t)
		env.authCalls = nil

		d, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13823)
		require.NoError(t, err)
		assert.Equal(t, ActionNoOp, d.Action)
		assert.Empty(t, env.authCalls)
		assert.Empty(t, tok.calls)
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	c, env, _ := initialized(t)
	env.allow(issuer, distributor)
	_, err := c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 13823)
	require.NoError(t, err)

	err = c.Reset(ctx, env)
	assert.ErrorIs(t, err, ErrUnauthorized)

	env.allow(admin)
	require.NoError(t, c.Reset(ctx, env))

	s, err := c.State(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, admin, s.Admin)
	assert.Empty(t, s.Token)
	assert.Nil(t, s.LastReading)

	_, err = c.UpdateSeaIceExtent(ctx, env, issuer, distributor, 1, 14000)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestReset_BeforeInit(t *testing.T) {
	err := New(nil).Reset(context.Background(), newFakeEnv())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInit_OneShot(t *testing.T) {
	ctx := context.Background()
	c, env, _ := initialized(t)

	err := c.Init(ctx, env, "GOTHER", "COTHER")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	env.allow(admin)
	require.NoError(t, c.Reset(ctx, env))

	// Re-initialization after a reset is gated by the surviving admin.
	env.deny(admin)
	err = c.Init(ctx, env, "GOTHER", "COTHER")
	assert.ErrorIs(t, err, ErrUnauthorized)

	env.allow(admin)
	require.NoError(t, c.Init(ctx, env, "GOTHER", "COTHER"))
	s, err := c.State(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, Address("GOTHER"), s.Admin)
	assert.Equal(t, Address("COTHER"), s.Token)
}

func TestInit_RequiresAddresses(t *testing.T) {
	err := New(nil).Init(context.Background(), newFakeEnv(), "", tokenAddr)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()

	err := New(nil).Upgrade(ctx, newFakeEnv(), "sha256:abc")
	assert.ErrorIs(t, err, ErrNotInitialized)

	c, env, _ := initialized(t)
	err = c.Upgrade(ctx, env, "sha256:abc")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, env.upgrades)

	env.allow(admin)
	require.NoError(t, c.Upgrade(ctx, env, "sha256:abc"))
	assert.Equal(t, []string{"sha256:abc"}, env.upgrades)

	env.upgradeErr = errors.New("no such code")
	err = c.Upgrade(ctx, env, "sha256:def")
	assert.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	err = c.Upgrade(ctx, env, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestState_MissingAdmin(t *testing.T) {
	env := newFakeEnv()
	env.store.data[KeyToken] = []byte(`"CTOKEN"`)

	_, err := New(nil).State(context.Background(), env)
	assert.ErrorIs(t, err, ErrMissingState)

	_, err = New(nil).UpdateSeaIceExtent(context.Background(), env, issuer, distributor, 1, 1)
	assert.Equal(t, KindMissingState, KindOf(err))
}

func TestRequireAuth_WrapsForeignErrors(t *testing.T) {
	env := &authErrEnv{fakeEnv: newFakeEnv(), err: errors.New("signature expired")}
	err := requireAuth(context.Background(), env, issuer)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "signature expired")
}

type authErrEnv struct {
	*fakeEnv
	err error
}

func (e *authErrEnv) RequireAuth(context.Context, Address) error { return e.err }

func TestContract_CustomTable(t *testing.T) {
	vals := make([]uint32, baseline.Days)
	for i := range vals {
		vals[i] = 10000
	}
	tbl, err := baseline.New("flat", "", vals)
	require.NoError(t, err)

	c := New(tbl)
	env := newFakeEnv()
	require.NoError(t, c.Init(context.Background(), env, admin, tokenAddr))
	env.allow(issuer)

	d, err := c.UpdateSeaIceExtent(context.Background(), env, issuer, distributor, 200, 10050)
	require.NoError(t, err)
	assert.Equal(t, uint32(10000), d.Baseline)
	assert.Equal(t, int64(50)*TokensPerExtentUnit*BaseUnitsPerToken, d.Amount())
}
