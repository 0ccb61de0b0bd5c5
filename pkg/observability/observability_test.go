package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sealcoin/seal/pkg/contract"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "seal-host", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	_, done := p.TrackInvocation(context.Background(), "version")
	done(contract.ErrUnauthorized)
	p.RecordSupply(context.Background(), contract.SupplyDecision{Action: contract.ActionMint, DeltaScaled: 1})
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackInvocation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewWithReader(reader)
	require.NoError(t, err)
	ctx := context.Background()

	_, done := p.TrackInvocation(ctx, "init")
	done(nil)
	_, done = p.TrackInvocation(ctx, "update_sea_ice_extent")
	done(contract.ErrOutOfRange)

	sums := collect(t, reader)
	assert.Equal(t, int64(2), sums["seal.invocations.total"])
	assert.Equal(t, int64(1), sums["seal.invocation.errors.total"])
	assert.Equal(t, int64(0), sums["seal.invocations.active"])
}

func TestRecordSupply(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewWithReader(reader)
	require.NoError(t, err)
	ctx := context.Background()

	p.RecordSupply(ctx, contract.SupplyDecision{Action: contract.ActionMint, DeltaScaled: 500})
	p.RecordSupply(ctx, contract.SupplyDecision{Action: contract.ActionBurn, DeltaScaled: -200})
	p.RecordSupply(ctx, contract.SupplyDecision{Action: contract.ActionNoOp})

	sums := collect(t, reader)
	assert.Equal(t, int64(500), sums["seal.supply.minted"])
	assert.Equal(t, int64(200), sums["seal.supply.burned"])
	assert.Equal(t, int64(3), sums["seal.readings.accepted"])
}
