package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/ledger/ledgertest"
)

// 需要设置 APPLEDGER_TEST_REDIS_ADDR，每个子测试使用独立前缀
func TestStore(t *testing.T) {
	addr := os.Getenv("APPLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APPLEDGER_TEST_REDIS_ADDR not set")
	}

	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		prefix := fmt.Sprintf("appledger-test-%d", time.Now().UnixNano())
		s, err := Dial(ctx, addr, "", 0, prefix)
		require.NoError(t, err)
		t.Cleanup(func() {
			s.rdb.Del(ctx, s.key("applications"), s.key("processed"), s.key("summary"))
			s.Close()
		})
		return s
	})
}
