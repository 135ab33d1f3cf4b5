package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/observability"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/types"
)

func TestMetricsExtensionCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	rec := &charge.Record{ChargeID: "chg_1", Amount: types.Stars(750)}
	require.NoError(t, m.OnInvoiceIssued(ctx, &invoice.Invoice{Price: types.Stars(750)}))
	require.NoError(t, m.OnPreCheckout(ctx, plugin.PreCheckout{Accepted: true}))
	require.NoError(t, m.OnPreCheckout(ctx, plugin.PreCheckout{Reason: "unknown plan"}))
	require.NoError(t, m.OnPreCheckout(ctx, plugin.PreCheckout{Reason: "malformed reference"}))
	require.NoError(t, m.OnChargeSettled(ctx, rec))
	require.NoError(t, m.OnChargeDuplicate(ctx, "chg_1"))
	require.NoError(t, m.OnChargeDuplicate(ctx, "chg_1"))
	require.NoError(t, m.OnActivationFailed(ctx, rec, errors.New("down")))
	require.NoError(t, m.OnReconciled(ctx, rec))

	assert.InDelta(t, 1, testutil.ToFloat64(m.InvoiceIssued.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PreCheckoutAccepted.(prometheus.Counter)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PreCheckoutRejected.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ChargeSettled.(prometheus.Counter)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ChargeDuplicate.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ActivationFailed.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reconciled.(prometheus.Counter)), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "starpay_charge_settled_total")
	assert.Contains(t, names, "starpay_charge_amount_stars")
}

func TestPrometheusFactoryReusesMetrics(t *testing.T) {
	f := observability.NewPrometheusFactory(prometheus.NewRegistry())
	assert.Same(t, f.Counter("starpay.charge.settled"), f.Counter("starpay.charge.settled"))
}
