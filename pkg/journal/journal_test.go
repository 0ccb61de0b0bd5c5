package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealcoin/seal/pkg/statestore"
)

func fixedClock() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func receipt(fn string, status Status) Receipt {
	return Receipt{Kind: "invoke", Contract: "CSEAL", Function: fn, Status: status}
}

func TestAppend(t *testing.T) {
	j := New(statestore.NewMemoryStore()).WithClock(fixedClock)
	ctx := context.Background()

	e, err := j.Append(ctx, receipt("init", StatusOK))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Sequence)
	assert.Equal(t, GenesisHash, e.PrevHash)
	assert.NotEmpty(t, e.ID)

	seq, hash, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, e.ContentHash, hash)
}

func TestHashChaining(t *testing.T) {
	j := New(statestore.NewMemoryStore())
	ctx := context.Background()

	e1, err := j.Append(ctx, receipt("init", StatusOK))
	require.NoError(t, err)
	e2, err := j.Append(ctx, receipt("update_sea_ice_extent", StatusFailed))
	require.NoError(t, err)

	assert.Equal(t, e1.ContentHash, e2.PrevHash)
	require.NoError(t, j.Verify(ctx))
}

func TestList_NewestFirst(t *testing.T) {
	j := New(statestore.NewMemoryStore())
	ctx := context.Background()
	for _, fn := range []string{"init", "update_sea_ice_extent", "reset"} {
		_, err := j.Append(ctx, receipt(fn, StatusOK))
		require.NoError(t, err)
	}

	got, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "reset", got[0].Receipt.Function)
	assert.Equal(t, "update_sea_ice_extent", got[1].Receipt.Function)

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGet_NotFound(t *testing.T) {
	j := New(statestore.NewMemoryStore())
	_, err := j.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerify_DetectsTampering(t *testing.T) {
	store := statestore.NewMemoryStore()
	j := New(store)
	ctx := context.Background()
	_, err := j.Append(ctx, receipt("init", StatusOK))
	require.NoError(t, err)
	_, err = j.Append(ctx, receipt("reset", StatusOK))
	require.NoError(t, err)

	err = store.Update(ctx, func(kv statestore.KV) error {
		e, err := readEntry(ctx, kv, 1)
		if err != nil {
			return err
		}
		e.Receipt.Function = "upgrade"
		raw, _ := json.Marshal(e)
		return kv.Set(ctx, entryKey(1), raw)
	})
	require.NoError(t, err)

	assert.ErrorIs(t, j.Verify(ctx), ErrBroken)
}

func TestVerify_Empty(t *testing.T) {
	assert.NoError(t, New(statestore.NewMemoryStore()).Verify(context.Background()))
}
