package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/httpapi"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/observability"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/store/memory"
	"github.com/xraph/starpay/types"
)

const token = "s3cret"

type fixture struct {
	app    *fiber.App
	engine *starpay.Engine
	store  *memory.Store
	fail   *atomic.Bool
}

func newFixture(t *testing.T, opts ...httpapi.Option) *fixture {
	t.Helper()

	fail := &atomic.Bool{}
	act := entitlement.ActivatorFunc(func(context.Context, entitlement.Grant) error {
		if fail.Load() {
			return errors.New("entitlement store offline")
		}
		return nil
	})
	ch := invoice.ChannelFunc(func(context.Context, *invoice.Invoice) error { return nil })
	catalog := plan.MustCatalog(
		&plan.Plan{ID: "weekly", Name: "Basic", Description: "7 days", Price: types.Stars(750), Period: 7 * 24 * time.Hour, Commands: []string{"/weekly"}},
	)

	reg := prometheus.NewRegistry()
	s := memory.New()
	engine, err := starpay.New(catalog, s, ch, act,
		starpay.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))))
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))

	opts = append([]httpapi.Option{httpapi.WithAdminToken(token), httpapi.WithGatherer(reg)}, opts...)
	return &fixture{app: httpapi.New(engine, opts...), engine: engine, store: s, fail: fail}
}

// settle pushes one payment through the engine and returns its charge id.
func (f *fixture) settle(t *testing.T, chargeID string) {
	t.Helper()
	ctx := context.Background()
	inv, err := f.engine.IssueInvoice(ctx, "weekly", 1001)
	require.NoError(t, err)
	_, _ = f.engine.Settle(ctx, starpay.Payment{ChargeID: chargeID, Payload: inv.Payload, Amount: 750, Currency: "XTR"})
}

func (f *fixture) do(t *testing.T, method, target string, auth bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &body))
	}
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/healthz", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, f.store.Close())
	status, body = f.do(t, http.MethodGet, "/healthz", false)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", body["error"])
}

func TestAdminTokenRequired(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/v1/plans", false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, _ = f.do(t, http.MethodGet, "/v1/plans", true)
	assert.Equal(t, http.StatusOK, status)
}

func TestPlans(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/v1/plans", true)
	require.Equal(t, http.StatusOK, status)

	plans := body["plans"].([]any)
	require.Len(t, plans, 1)
	p := plans[0].(map[string]any)
	assert.Equal(t, "weekly", p["id"])
	assert.Equal(t, float64(7), p["period_days"])
	assert.Equal(t, float64(750), p["price"].(map[string]any)["amount"])
}

func TestChargeLookup(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "chg_1")

	status, body := f.do(t, http.MethodGet, "/v1/charges/chg_1", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "chg_1", body["record"].(map[string]any)["charge_id"])
	assert.Equal(t, "activated", body["activation"].(map[string]any)["status"])

	status, body = f.do(t, http.MethodGet, "/v1/charges/missing", true)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"])
}

func TestListCharges(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "chg_1")
	f.settle(t, "chg_2")

	status, body := f.do(t, http.MethodGet, "/v1/charges?requester_id=1001&limit=1", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = f.do(t, http.MethodGet, "/v1/charges?requester_id=abc", true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["error"])
}

func TestFailedActivationAndReconcile(t *testing.T) {
	f := newFixture(t)
	f.fail.Store(true)
	f.settle(t, "chg_9")

	status, body := f.do(t, http.MethodGet, "/v1/activations", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = f.do(t, http.MethodPost, "/v1/charges/chg_9/reconcile", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "activation_failed", body["status"])

	f.fail.Store(false)
	status, body = f.do(t, http.MethodPost, "/v1/charges/chg_9/reconcile", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "activated", body["status"])

	status, body = f.do(t, http.MethodPost, "/v1/charges/chg_9/reconcile", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "already_settled", body["status"])

	status, _ = f.do(t, http.MethodPost, "/v1/charges/nope/reconcile", true)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = f.do(t, http.MethodGet, "/v1/activations?status=bogus", true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "chg_1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "starpay_charge_settled_total 1")
}

func TestTelegramWebhookMounted(t *testing.T) {
	var hits atomic.Int32
	f := newFixture(t, httpapi.WithTelegramWebhook(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, httpapi.WebhookPath, strings.NewReader(`{"update_id":1}`))
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
