package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/store/postgres"
	"github.com/xraph/starpay/store/storetest"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("STARPAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STARPAY_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))

		_, err = pgdriver.Unwrap(s.DB()).NewRaw(`TRUNCATE starpay_charges, starpay_activations, starpay_grants`).Exec(ctx)
		require.NoError(t, err)

		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
