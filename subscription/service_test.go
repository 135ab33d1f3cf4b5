package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/store/memory"
	"github.com/xraph/starpay/subscription"
)

const week = 7 * 24 * time.Hour

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T) (*subscription.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: base}
	return subscription.NewService(memory.New(), subscription.WithClock(clock.Now)), clock
}

func weekly(chargeID string) entitlement.Grant {
	return entitlement.Grant{RequesterID: 1001, PlanID: "weekly", ChargeID: chargeID, Period: week}
}

func TestActivateStartsNow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	require.NoError(t, svc.Activate(ctx, weekly("chg_1")))

	cur, err := svc.Current(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "chg_1", cur.ChargeID)
	assert.True(t, cur.StartsAt.Equal(base))
	assert.True(t, cur.EndsAt.Equal(base.Add(week)))
	assert.Equal(t, week, cur.Remaining(base))
}

func TestActivateExtendsActiveGrant(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t)

	require.NoError(t, svc.Activate(ctx, weekly("chg_1")))
	clock.Advance(2 * 24 * time.Hour)
	require.NoError(t, svc.Activate(ctx, weekly("chg_2")))

	history, err := svc.History(ctx, 1001, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "chg_2", history[0].ChargeID)
	assert.True(t, history[0].StartsAt.Equal(base.Add(week)), "extension starts where the running grant ends")
	assert.True(t, history[0].EndsAt.Equal(base.Add(2*week)))
}

func TestActivateAfterExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t)

	require.NoError(t, svc.Activate(ctx, weekly("chg_1")))
	clock.Advance(10 * 24 * time.Hour)

	_, err := svc.Current(ctx, 1001)
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	require.NoError(t, svc.Activate(ctx, weekly("chg_2")))
	cur, err := svc.Current(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, cur.StartsAt.Equal(base.Add(10*24*time.Hour)))
}

func TestActivateIsIdempotentPerCharge(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t)

	require.NoError(t, svc.Activate(ctx, weekly("chg_1")))
	require.NoError(t, svc.Activate(ctx, weekly("chg_2")))
	clock.Advance(time.Hour)

	// Replays of both an older and the latest charge.
	require.NoError(t, svc.Activate(ctx, weekly("chg_1")))
	require.NoError(t, svc.Activate(ctx, weekly("chg_2")))

	history, err := svc.History(ctx, 1001, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.True(t, history[0].EndsAt.Equal(base.Add(2*week)))
}

func TestConcurrentActivationsDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	var wg sync.WaitGroup
	for _, chargeID := range []string{"chg_a", "chg_b", "chg_c", "chg_d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Activate(ctx, weekly(chargeID)))
		}()
	}
	wg.Wait()

	cur, err := svc.Current(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, cur.EndsAt.Equal(base.Add(4*week)), "four weekly grants stack end to end")
}

func TestActivateRejectsIncompleteGrant(t *testing.T) {
	svc, _ := newService(t)

	tests := []struct {
		name  string
		grant entitlement.Grant
	}{
		{"missing charge", entitlement.Grant{RequesterID: 1001, Period: week}},
		{"missing requester", entitlement.Grant{ChargeID: "chg_1", Period: week}},
		{"zero period", entitlement.Grant{ChargeID: "chg_1", RequesterID: 1001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Activate(context.Background(), tt.grant)
			assert.True(t, errors.Is(err, subscription.ErrInvalidGrant))
		})
	}
}
