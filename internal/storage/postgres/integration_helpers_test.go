package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// integrationDSN берёт DSN из окружения; без него интеграционные тесты пропускаются.
func integrationDSN(t *testing.T) string {
	t.Helper()

	for _, key := range []string{"ORDERDESK_POSTGRES_TEST_DSN", "ORDERDESK_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn
		}
	}
	t.Skip("ORDERDESK_POSTGRES_TEST_DSN is not set, skipping postgres integration test")
	return ""
}

// newIntegrationStore открывает хранилище. С migrated=true схема поднимается
// до последней версии и все таблицы очищаются.
func newIntegrationStore(t *testing.T, migrated bool) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, integrationDSN(t))
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if !migrated {
		return store
	}
	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err = store.DB().ExecContext(ctx,
		`TRUNCATE outbox_messages, timeline_events, cart_items, orders, users CASCADE`)
	require.NoError(t, err)
	return store
}
