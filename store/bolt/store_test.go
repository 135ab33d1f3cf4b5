package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/store"
	boltstore "github.com/xraph/starpay/store/bolt"
	"github.com/xraph/starpay/store/storetest"
)

func openStore(t *testing.T, path string) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := openStore(t, filepath.Join(t.TempDir(), "starpay.bolt"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "starpay.bolt")

	s := openStore(t, path)
	created, err := s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, s.Close())

	s = openStore(t, path)
	defer s.Close()

	created, err = s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "starpay.bolt"))
	require.NoError(t, s.Close())

	_, err := s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	assert.ErrorIs(t, err, starpay.ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), starpay.ErrStoreClosed)
}
