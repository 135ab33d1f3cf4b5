package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/store/sqlite"
	"github.com/xraph/starpay/store/storetest"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(context.Background(), "file:"+path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := openStore(t, filepath.Join(t.TempDir(), "starpay.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "starpay.db")

	s := openStore(t, path)
	created, err := s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, s.Close())

	s = openStore(t, path)
	defer s.Close()

	got, err := s.GetCharge(ctx, "chg_1")
	require.NoError(t, err)
	assert.Equal(t, "weekly", got.PlanID)

	created, err = s.InsertCharge(ctx, storetest.NewRecord("chg_1", 1001, "weekly", storetest.Base))
	require.NoError(t, err)
	assert.False(t, created, "a restart must not reopen the duplicate window")
}
