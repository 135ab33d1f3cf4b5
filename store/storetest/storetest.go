// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
	"github.com/xraph/starpay/types"
)

// Factory returns a migrated, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the full suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertChargeOnce", func(t *testing.T) { testInsertChargeOnce(t, newStore(t)) })
	t.Run("ConcurrentInsertCharge", func(t *testing.T) { testConcurrentInsertCharge(t, newStore(t)) })
	t.Run("GetChargeNotFound", func(t *testing.T) { testGetChargeNotFound(t, newStore(t)) })
	t.Run("ListCharges", func(t *testing.T) { testListCharges(t, newStore(t)) })
	t.Run("Activations", func(t *testing.T) { testActivations(t, newStore(t)) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, newStore(t)) })
	t.Run("MigrateIsIdempotent", func(t *testing.T) { testMigrateIdempotent(t, newStore(t)) })
}

// Base is the reference time used by the fixtures. Stores may truncate
// sub-microsecond precision, so fixtures stay on whole seconds.
var Base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord builds a settled charge fixture.
func NewRecord(chargeID string, requester int64, planID string, settledAt time.Time) *charge.Record {
	return &charge.Record{
		ChargeID:         chargeID,
		ProviderChargeID: "prov_" + chargeID,
		InvoiceID:        id.NewInvoiceID(),
		PlanID:           planID,
		RequesterID:      requester,
		Amount:           types.Stars(750),
		Expected:         types.Stars(750),
		SettledAt:        settledAt,
	}
}

func testInsertChargeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := NewRecord("chg_1", 1001, "weekly", Base)

	created, err := s.InsertCharge(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	dup := NewRecord("chg_1", 2002, "annual", Base.Add(time.Hour))
	created, err = s.InsertCharge(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetCharge(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), got.RequesterID, "the first record must survive a duplicate insert")
	assert.Equal(t, "weekly", got.PlanID)
	assert.Equal(t, rec.InvoiceID, got.InvoiceID)
	assert.Equal(t, "prov_chg_1", got.ProviderChargeID)
	assert.Equal(t, types.Stars(750), got.Amount)
	assert.Equal(t, types.Stars(750), got.Expected)
	assert.True(t, rec.SettledAt.Equal(got.SettledAt), "settled_at %v != %v", got.SettledAt, rec.SettledAt)
}

func testConcurrentInsertCharge(t *testing.T, s store.Store) {
	ctx := context.Background()

	const writers = 8
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.InsertCharge(ctx, NewRecord("chg_race", int64(1000+i), "weekly", Base))
			if assert.NoError(t, err) && created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	list, err := s.ListCharges(ctx, charge.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testGetChargeNotFound(t *testing.T, s store.Store) {
	_, err := s.GetCharge(context.Background(), "missing")
	assert.ErrorIs(t, err, starpay.ErrChargeNotFound)

	_, err = s.GetActivation(context.Background(), "missing")
	assert.ErrorIs(t, err, starpay.ErrActivationNotFound)

	_, err = s.LatestGrant(context.Background(), 42)
	assert.ErrorIs(t, err, starpay.ErrGrantNotFound)
}

func testListCharges(t *testing.T, s store.Store) {
	ctx := context.Background()
	fixtures := []*charge.Record{
		NewRecord("chg_a", 1001, "weekly", Base),
		NewRecord("chg_b", 1001, "monthly", Base.Add(time.Hour)),
		NewRecord("chg_c", 2002, "weekly", Base.Add(2*time.Hour)),
		NewRecord("chg_d", 1001, "weekly", Base.Add(3*time.Hour)),
	}
	for _, r := range fixtures {
		_, err := s.InsertCharge(ctx, r)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		opts charge.ListOpts
		want []string
	}{
		{"all newest first", charge.ListOpts{}, []string{"chg_d", "chg_c", "chg_b", "chg_a"}},
		{"by requester", charge.ListOpts{RequesterID: 1001}, []string{"chg_d", "chg_b", "chg_a"}},
		{"by plan", charge.ListOpts{PlanID: "weekly"}, []string{"chg_d", "chg_c", "chg_a"}},
		{"requester and plan", charge.ListOpts{RequesterID: 1001, PlanID: "weekly"}, []string{"chg_d", "chg_a"}},
		{"since", charge.ListOpts{Since: Base.Add(2 * time.Hour)}, []string{"chg_d", "chg_c"}},
		{"limit", charge.ListOpts{Limit: 2}, []string{"chg_d", "chg_c"}},
		{"offset", charge.ListOpts{Limit: 2, Offset: 2}, []string{"chg_b", "chg_a"}},
		{"offset past end", charge.ListOpts{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListCharges(ctx, tt.opts)
			require.NoError(t, err)
			got := make([]string, len(list))
			for i, r := range list {
				got[i] = r.ChargeID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testActivations(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i, st := range []charge.ActivationStatus{charge.ActivationFailed, charge.ActivationActivated, charge.ActivationFailed} {
		a := &charge.Activation{
			Entity:   types.NewEntity(Base.Add(time.Duration(i) * time.Minute)),
			ChargeID: fmt.Sprintf("chg_%d", i),
			Status:   st,
			Attempts: 1,
		}
		if st == charge.ActivationFailed {
			a.LastError = "store offline"
		}
		require.NoError(t, s.PutActivation(ctx, a))
	}

	failed, err := s.ListActivations(ctx, charge.ActivationFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "chg_0", failed[0].ChargeID)
	assert.Equal(t, "chg_2", failed[1].ChargeID)
	assert.Equal(t, "store offline", failed[0].LastError)

	all, err := s.ListActivations(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListActivations(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// Upsert replaces the previous state.
	a, err := s.GetActivation(ctx, "chg_0")
	require.NoError(t, err)
	a.Status = charge.ActivationActivated
	a.Attempts++
	a.LastError = ""
	a.Touch(Base.Add(time.Hour))
	require.NoError(t, s.PutActivation(ctx, a))

	got, err := s.GetActivation(ctx, "chg_0")
	require.NoError(t, err)
	assert.Equal(t, charge.ActivationActivated, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.LastError)
	assert.True(t, got.CreatedAt.Equal(Base), "created_at must be preserved")

	failed, err = s.ListActivations(ctx, charge.ActivationFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func testGrants(t *testing.T, s store.Store) {
	ctx := context.Background()
	week := 7 * 24 * time.Hour

	first := &subscription.Grant{
		ID: id.NewGrantID(), ChargeID: "chg_1", RequesterID: 1001, PlanID: "weekly",
		StartsAt: Base, EndsAt: Base.Add(week), CreatedAt: Base,
	}
	second := &subscription.Grant{
		ID: id.NewGrantID(), ChargeID: "chg_2", RequesterID: 1001, PlanID: "weekly",
		StartsAt: Base.Add(week), EndsAt: Base.Add(2 * week), CreatedAt: Base.Add(time.Hour),
	}
	other := &subscription.Grant{
		ID: id.NewGrantID(), ChargeID: "chg_3", RequesterID: 2002, PlanID: "annual",
		StartsAt: Base, EndsAt: Base.Add(365 * 24 * time.Hour), CreatedAt: Base,
	}

	for _, g := range []*subscription.Grant{first, second, other} {
		created, err := s.InsertGrant(ctx, g)
		require.NoError(t, err)
		assert.True(t, created)
	}

	dup := *first
	dup.ID = id.NewGrantID()
	created, err := s.InsertGrant(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created, "grants are unique per charge id")

	latest, err := s.LatestGrant(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "chg_2", latest.ChargeID)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.EndsAt.Equal(second.EndsAt))

	history, err := s.ListGrants(ctx, 1001, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "chg_2", history[0].ChargeID)
	assert.Equal(t, "chg_1", history[1].ChargeID)

	history, err = s.ListGrants(ctx, 1001, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func testMigrateIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}
