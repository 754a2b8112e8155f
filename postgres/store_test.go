package postgres

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/checkpointtest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("crew"),
		tcpostgres.WithUsername("crew"),
		tcpostgres.WithPassword("crew"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	store, err := Open(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	checkpointtest.Run(t, func(t *testing.T) crew.CheckpointStore {
		require.NoError(t, store.Reset(ctx))
		return store
	})

	t.Run("compact prunes history", func(t *testing.T) {
		require.NoError(t, store.Reset(ctx))
		for i := 1; i <= 4; i++ {
			require.NoError(t, store.Put(ctx, checkpointtest.Sample("thread_a", i)))
		}
		require.NoError(t, store.Compact(ctx))
		n, err := store.Count(ctx, "thread_a")
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})
}
