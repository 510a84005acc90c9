package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/ledger/ledgertest"
)

// 需要设置 APPLEDGER_TEST_POSTGRES_DSN 指向一个可清空的数据库
func TestStore(t *testing.T) {
	dsn := os.Getenv("APPLEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("APPLEDGER_TEST_POSTGRES_DSN not set")
	}

	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		s, err := Connect(ctx, dsn, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		_, err = s.db.Exec(ctx, `DROP TABLE IF EXISTS applications, processed_message_ids, company_summary`)
		require.NoError(t, err)
		return s
	})
}
