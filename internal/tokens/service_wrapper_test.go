package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/token-recycle/internal/metrics"
)

func TestServiceWithMetricsRecordsRequests(t *testing.T) {
	ledger, auth := newTestLedger(t)
	manager := metrics.NewManager()
	service := NewServiceWithMetrics(ledger, manager)
	ctx := context.Background()

	_, err := service.Account(ctx, aliceDead)
	require.NoError(t, err)
	require.NoError(t, service.Burn(ctx, aliceDead, alice, 1_000_000))
	require.NoError(t, service.Transfer(ctx, reserve, aliceReward, auth, 2))

	ledger.FailNext(OpRevertBurn, errors.New("ledger offline"))
	assert.Error(t, service.RevertBurn(ctx, aliceDead, 1_000_000))
	require.NoError(t, service.RevertTransfer(ctx, reserve, aliceReward, 2))

	m := manager.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenLedgerRequestsTotal.WithLabelValues("account", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenLedgerRequestsTotal.WithLabelValues(OpBurn, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenLedgerRequestsTotal.WithLabelValues(OpTransfer, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenLedgerRequestsTotal.WithLabelValues(OpRevertBurn, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenLedgerRequestsTotal.WithLabelValues(OpRevertTransfer, "success")))

	assert.Equal(t, uint64(4_000_000), ledger.Balance(aliceDead))
	assert.Equal(t, uint64(100), ledger.Balance(reserve))
}

func TestServiceWithMetricsWithoutManager(t *testing.T) {
	ledger, _ := newTestLedger(t)
	service := NewServiceWithMetrics(ledger, nil)
	require.NoError(t, service.Burn(context.Background(), aliceDead, alice, 1))
	assert.Equal(t, uint64(4_999_999), ledger.Balance(aliceDead))
}
