package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	for _, table := range []string{"users", "stakeholders", "invites", "events", "event_stakeholders", "notifications", "audit_log"} {
		var count int
		err := pool.QueryRow(context.Background(), `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "missing table %s", table)
	}
}
