// Package ledgertest 提供各账本实现共用的一致性测试。
package ledgertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/types"
)

// App 构造测试记录
func App(id, company, role, jobID string) types.Application {
	return types.Application{
		Company:     company,
		RoleTitle:   role,
		JobID:       jobID,
		DateApplied: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		MessageID:   id,
		From:        fmt.Sprintf("Careers <jobs@%s.example>", id),
		Subject:     "Thank you for applying, " + role,
		ThreadURL:   "https://mail.google.com/mail/u/0/#inbox/" + id,
	}
}

// RunStoreTests 对 Store 实现执行一致性测试。newStore 每次返回一个空账本
func RunStoreTests(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("EnsureIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Ensure(ctx))
		require.NoError(t, s.Ensure(ctx))

		apps, err := s.LoadApplications(ctx)
		require.NoError(t, err)
		assert.Empty(t, apps)
		ids, err := s.LoadProcessedIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Ensure(ctx))

		first := []types.Application{App("m1", "Acme Corp", "Backend Engineer", "4821"), App("m2", "Globex", "", "")}
		second := []types.Application{App("m3", "Acme Corp", "Data Analyst", "")}
		require.NoError(t, s.Append(ctx, first))
		require.NoError(t, s.Append(ctx, second))

		apps, err := s.LoadApplications(ctx)
		require.NoError(t, err)
		assert.Equal(t, append(first, second...), apps)

		ids, err := s.LoadProcessedIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, ids)
	})

	t.Run("SummaryIsReplaced", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Ensure(ctx))

		require.NoError(t, s.ReplaceSummary(ctx, []types.CompanySummary{{Company: "Acme", ApplicationCount: 3, DistinctRoleCount: 2}}))
		require.NoError(t, s.ReplaceSummary(ctx, []types.CompanySummary{{Company: "Globex", ApplicationCount: 1, DistinctRoleCount: 1}}))
	})

	t.Run("SyncIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		sync := ledger.NewSynchronizer(s, nil)
		batch := []types.Application{App("m1", "Acme Corp", "Backend Engineer", "4821"), App("m2", "Acme Corp", "Backend Engineer", "")}

		res, err := sync.Sync(ctx, batch)
		require.NoError(t, err)
		assert.Len(t, res.Added, 2)

		res, err = sync.Sync(ctx, batch)
		require.NoError(t, err)
		assert.Empty(t, res.Added)
		assert.Equal(t, 2, res.Skipped)
		assert.Equal(t, []types.CompanySummary{{Company: "Acme Corp", ApplicationCount: 2, DistinctRoleCount: 2}}, res.Summary)

		apps, err := s.LoadApplications(ctx)
		require.NoError(t, err)
		assert.Len(t, apps, 2)
	})
}
