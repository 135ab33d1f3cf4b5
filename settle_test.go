package starpay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/reference"
	"github.com/xraph/starpay/types"
)

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.engine.IssueInvoice(ctx, "weekly", 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(750), inv.Price.Amount)

	v := h.engine.Validate(ctx, inv.Payload)
	assert.True(t, v.Accepted)

	pay := starpay.Payment{ChargeID: "chg_1", Payload: inv.Payload, Amount: 750, Currency: "XTR"}
	res, err := h.engine.Settle(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusActivated, res.Status)
	assert.Equal(t, []entitlement.Grant{{
		RequesterID: 1001, PlanID: "weekly", ChargeID: "chg_1", Period: 7 * 24 * time.Hour,
	}}, h.activator.calls())

	res, err = h.engine.Settle(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusAlreadySettled, res.Status)
	assert.Len(t, h.activator.calls(), 1, "redelivery must not activate again")
	assert.Equal(t, int32(1), h.hooks.settled.Load())
	assert.Equal(t, int32(1), h.hooks.duplicates.Load())

	view, err := h.engine.GetCharge(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, view.Record.InvoiceID)
	assert.Equal(t, types.Stars(750), view.Record.Amount)
	assert.True(t, view.Record.SettledAt.Equal(now))
	require.NotNil(t, view.Activation)
	assert.Equal(t, charge.ActivationActivated, view.Activation.Status)
	assert.Equal(t, 1, view.Activation.Attempts)
}

func TestConcurrentDuplicateSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := h.payload(t, "weekly", 1001)

	const deliveries = 16
	statuses := make([]starpay.Status, deliveries)
	var wg sync.WaitGroup
	for i := range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_race", Payload: payload, Amount: 750})
			if assert.NoError(t, err) {
				statuses[i] = res.Status
			}
		}()
	}
	wg.Wait()

	counts := map[starpay.Status]int{}
	for _, s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[starpay.StatusActivated])
	assert.Equal(t, deliveries-1, counts[starpay.StatusAlreadySettled])
	assert.Len(t, h.activator.calls(), 1)

	list, err := h.engine.ListCharges(ctx, charge.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUnrelatedChargesSettleIndependently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, chargeID := range []string{"chg_a", "chg_b", "chg_c", "chg_d"} {
		payload := h.payload(t, "weekly", 1001)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: chargeID, Payload: payload, Amount: 750})
			if assert.NoError(t, err) {
				assert.Equal(t, starpay.StatusActivated, res.Status)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, h.activator.calls(), 4)
}

func TestSettleRejectsUnmatchedPayments(t *testing.T) {
	ghost, _ := reference.NewCodec(nil).Encode("ghost-plan", 1001)

	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"malformed", "not-a-valid-payload", starpay.ReasonMalformedReference},
		{"unknown plan", ghost, starpay.ReasonUnknownPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_x", Payload: tt.payload, Amount: 750})
			require.NoError(t, err, "rejections are resolved locally")
			assert.Equal(t, starpay.StatusRejected, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, h.activator.calls())
			assert.Equal(t, int32(1), h.hooks.rejected.Load())

			_, err = h.engine.GetCharge(ctx, "chg_x")
			assert.ErrorIs(t, err, starpay.ErrChargeNotFound, "rejected payments are not ledgered")
		})
	}
}

func TestSettleRequiresChargeID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Settle(context.Background(), starpay.Payment{ChargeID: "  ", Payload: "x"})
	assert.ErrorIs(t, err, starpay.ErrInvalidInput)
}

func TestSettleRecordsAmountMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_1", Payload: h.payload(t, "weekly", 1001), Amount: 700})
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusActivated, res.Status, "money already moved; a mismatch is recorded, not rejected")
	assert.Equal(t, types.Stars(700), res.Record.Amount)
	assert.Equal(t, types.Stars(750), res.Record.Expected)
	assert.False(t, res.Record.AmountMatches())
}

func TestActivationFailureThenReconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activator.setFail(errors.New("grant store offline"))

	res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_1", Payload: h.payload(t, "weekly", 1001), Amount: 750})
	require.Error(t, err)
	assert.ErrorIs(t, err, starpay.ErrActivationFailed)
	assert.True(t, starpay.IsOperatorAction(err))
	var actErr *starpay.ActivationError
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "chg_1", actErr.ChargeID)

	require.NotNil(t, res)
	assert.Equal(t, starpay.StatusActivationFailed, res.Status)
	assert.Equal(t, "grant store offline", res.Reason)
	assert.Equal(t, int32(1), h.hooks.failed.Load())

	// The charge stays recorded; a redelivery is still a duplicate.
	res, err = h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_1", Payload: "anything", Amount: 750})
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusAlreadySettled, res.Status)

	failed, err := h.engine.FailedActivations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "chg_1", failed[0].ChargeID)
	assert.Equal(t, "grant store offline", failed[0].LastError)

	h.activator.setFail(nil)
	res, err = h.engine.Reconcile(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusActivated, res.Status)
	assert.Equal(t, 2, res.Activation.Attempts)
	assert.Len(t, h.activator.calls(), 1)
	assert.Equal(t, int32(1), h.hooks.reconciled.Load())

	res, err = h.engine.Reconcile(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusAlreadySettled, res.Status)
	assert.Len(t, h.activator.calls(), 1, "reconcile activates exactly once")

	failed, err = h.engine.FailedActivations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestLedgerWriteFailureAlertsOperator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := h.payload(t, "weekly", 1001)
	h.store.failInsert(errors.New("disk full"))

	res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_x", Payload: payload, Amount: 750})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, starpay.ErrChargeNotRecorded)
	assert.True(t, starpay.IsOperatorAction(err))
	var setErr *starpay.SettlementError
	require.ErrorAs(t, err, &setErr)
	assert.Equal(t, "chg_x", setErr.ChargeID)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, int32(1), h.hooks.rejected.Load())
	assert.Equal(t, []string{starpay.ReasonLedgerUnavailable}, h.hooks.rejectionReasons())
	assert.Empty(t, h.activator.calls())

	// Once the ledger is back a redelivery settles normally.
	h.store.failInsert(nil)
	res, err = h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_x", Payload: payload, Amount: 750})
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusActivated, res.Status)
}

func TestActivationStateWriteFailureKeepsSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := h.payload(t, "weekly", 1001)
	h.store.failPutActivation(errors.New("activations table locked"))

	res, err := h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_1", Payload: payload, Amount: 750})
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusActivated, res.Status)
	assert.Len(t, h.activator.calls(), 1)
	assert.Equal(t, int32(1), h.hooks.settled.Load())

	view, err := h.engine.GetCharge(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, "weekly", view.Record.PlanID)
	assert.Nil(t, view.Activation)

	res, err = h.engine.Settle(ctx, starpay.Payment{ChargeID: "chg_1", Payload: payload, Amount: 750})
	require.NoError(t, err)
	assert.Equal(t, starpay.StatusAlreadySettled, res.Status)
	assert.Len(t, h.activator.calls(), 1)
}

func TestListChargesRejectsNegativePaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ListCharges(ctx, charge.ListOpts{Offset: -1})
	assert.ErrorIs(t, err, starpay.ErrInvalidInput)
	_, err = h.engine.ListCharges(ctx, charge.ListOpts{Limit: -5})
	assert.ErrorIs(t, err, starpay.ErrInvalidInput)

	list, err := h.engine.ListCharges(ctx, charge.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReconcileUnknownCharge(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Reconcile(context.Background(), "chg_missing")
	assert.ErrorIs(t, err, starpay.ErrChargeNotFound)
	assert.True(t, starpay.IsNotFound(err))
}

func TestSignedReferences(t *testing.T) {
	h := newHarness(t, starpay.WithCodec(reference.NewCodec([]byte("s3cret"))))
	ctx := context.Background()

	payload := h.payload(t, "weekly", 1001)
	assert.True(t, h.engine.Validate(ctx, payload).Accepted)

	forged, _ := reference.NewCodec(nil).Encode("weekly", 1001)
	v := h.engine.Validate(ctx, forged)
	assert.Equal(t, starpay.ReasonMalformedReference, v.Reason)
}
