package audithook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/starpay/audit_hook"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/types"
)

type capture struct {
	events []*audithook.AuditEvent
}

func (c *capture) Record(_ context.Context, e *audithook.AuditEvent) error {
	c.events = append(c.events, e)
	return nil
}

func record() *charge.Record {
	return &charge.Record{
		ChargeID: "chg_1", PlanID: "weekly", RequesterID: 1001,
		Amount: types.Stars(750), Expected: types.Stars(750),
	}
}

func TestActivationFailureIsCritical(t *testing.T) {
	c := &capture{}
	ext := audithook.New(c)

	require.NoError(t, ext.OnActivationFailed(context.Background(), record(), errors.New("grant store offline")))

	require.Len(t, c.events, 1)
	evt := c.events[0]
	assert.Equal(t, audithook.ActionActivationFailed, evt.Action)
	assert.Equal(t, audithook.SeverityCritical, evt.Severity)
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, "chg_1", evt.ResourceID)
	assert.Equal(t, "grant store offline", evt.Reason)
	assert.Equal(t, "weekly", evt.Metadata["plan_id"])
	assert.Equal(t, int64(1001), evt.Metadata["requester_id"])
}

func TestPreCheckoutOutcome(t *testing.T) {
	c := &capture{}
	ext := audithook.New(c)
	ctx := context.Background()

	require.NoError(t, ext.OnPreCheckout(ctx, plugin.PreCheckout{QueryID: "q1", PlanID: "weekly", Accepted: true}))
	require.NoError(t, ext.OnPreCheckout(ctx, plugin.PreCheckout{QueryID: "q2", Reason: "unknown plan"}))

	require.Len(t, c.events, 2)
	assert.Equal(t, audithook.ActionPreCheckoutAccepted, c.events[0].Action)
	assert.Equal(t, audithook.ActionPreCheckoutRejected, c.events[1].Action)
	assert.Equal(t, "unknown plan", c.events[1].Reason)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	c := &capture{}
	ext := audithook.New(c, audithook.WithEnabledActions(audithook.ActionChargeSettled))
	require.NoError(t, ext.OnChargeSettled(ctx, record()))
	require.NoError(t, ext.OnChargeDuplicate(ctx, "chg_1"))
	require.Len(t, c.events, 1)
	assert.Equal(t, audithook.ActionChargeSettled, c.events[0].Action)

	c = &capture{}
	ext = audithook.New(c, audithook.WithDisabledActions(audithook.ActionChargeDuplicate))
	require.NoError(t, ext.OnChargeSettled(ctx, record()))
	require.NoError(t, ext.OnChargeDuplicate(ctx, "chg_1"))
	require.Len(t, c.events, 1)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("audit backend down")
	}))
	assert.NoError(t, ext.OnChargeDuplicate(context.Background(), "chg_1"))
}
