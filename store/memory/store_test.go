package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/store/memory"
	"github.com/xraph/starpay/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	rec := storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base)
	_, err := s.InsertCharge(ctx, rec)
	require.NoError(t, err)
	rec.PlanID = "mutated"

	got, err := s.GetCharge(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, "weekly", got.PlanID)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Close())

	_, err := s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	assert.ErrorIs(t, err, starpay.ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), starpay.ErrStoreClosed)
}

func TestNegativeOffsetStartsAtFirstRow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, err := s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	require.NoError(t, err)

	var list []*charge.Record
	require.NotPanics(t, func() {
		list, err = s.ListCharges(ctx, charge.ListOpts{Offset: -1})
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
