// Package dbtest opens isolated in-memory sqlite databases carrying the
// billing schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

const schema = `
CREATE TABLE IF NOT EXISTS entitlements (
  user_id TEXT PRIMARY KEY,
  lookup_key TEXT NOT NULL,
  tier TEXT NOT NULL DEFAULT 'ritel',
  status TEXT NOT NULL DEFAULT 'active',
  period_end DATETIME,
  billing_interval TEXT,
  backtest_limit INTEGER NOT NULL,
  ai_chat_limit INTEGER NOT NULL,
  strategy_limit INTEGER NOT NULL,
  backtest_used INTEGER NOT NULL DEFAULT 0,
  backtest_reset_at DATETIME NOT NULL,
  ai_chat_used INTEGER NOT NULL DEFAULT 0,
  ai_chat_reset_at DATETIME NOT NULL,
  granted_order_at DATETIME,
  revision INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  tier TEXT NOT NULL,
  billing_interval TEXT NOT NULL,
  transaction_status TEXT NOT NULL,
  outcome TEXT NOT NULL,
  gross_amount NUMERIC NOT NULL,
  payment_type TEXT,
  gateway_transaction_id TEXT,
  saved_token_id TEXT,
  gateway_subscription_id TEXT,
  processed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS recurring_subscriptions (
  id TEXT PRIMARY KEY,
  gateway_subscription_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  tier TEXT NOT NULL,
  billing_interval TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  token_id TEXT NOT NULL,
  schedule_interval INTEGER NOT NULL,
  schedule_interval_unit TEXT NOT NULL,
  schedule_max_interval INTEGER NOT NULL,
  status TEXT NOT NULL,
  origin_order_id TEXT NOT NULL,
  last_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS webhook_inbox (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  transaction_status TEXT NOT NULL,
  payload TEXT NOT NULL,
  received_at DATETIME NOT NULL,
  processed_at DATETIME,
  result TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (order_id, transaction_status)
);`

// Open returns a fresh database private to t. A single pooled connection
// serializes concurrent transactions the way row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
