package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"chatsync/internal/database"
)

// TestPostgresStore runs against a disposable database named by
// TEST_DATABASE_URL. Tables are truncated between cases.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))

	runStoreSuite(t, func(t *testing.T) backend {
		_, err := pool.Exec(ctx, `TRUNCATE messages, users`)
		require.NoError(t, err)
		return NewPostgresStore(pool)
	})
}
