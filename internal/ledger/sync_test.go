package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/ledger/ledgertest"
	"github.com/YKarmar/appledger/internal/types"
)

var app = ledgertest.App

func TestMemoryStore(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store { return ledger.NewMemoryStore() })
}

func TestDryRunStore(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store { return ledger.NewDryRun(ledger.NewMemoryStore()) })
}

func TestDryRunLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := ledger.NewMemoryStore()
	require.NoError(t, base.Append(ctx, []types.Application{app("old", "Acme", "", "")}))

	dry := ledger.NewDryRun(base)
	res, err := ledger.NewSynchronizer(dry, nil).Sync(ctx, []types.Application{app("old", "Acme", "", ""), app("new", "Globex", "", "")})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Len(t, dry.Summary(), 2)

	apps, _ := base.LoadApplications(ctx)
	assert.Len(t, apps, 1)
	assert.Empty(t, base.Summary())
}

// absentStore 区域尚未创建：Ensure 会失败，读取会报错
type absentStore struct {
	*ledger.MemoryStore
	ensured bool
}

func (s *absentStore) Exists(context.Context) (bool, error) { return false, nil }
func (s *absentStore) Ensure(context.Context) error       { s.ensured = true; return nil }
func (s *absentStore) LoadApplications(context.Context) ([]types.Application, error) {
	return nil, errors.New("region missing")
}
func (s *absentStore) LoadProcessedIDs(context.Context) ([]string, error) {
	return nil, errors.New("region missing")
}

func TestDryRunTreatsMissingRegionAsEmpty(t *testing.T) {
	ctx := context.Background()
	base := &absentStore{MemoryStore: ledger.NewMemoryStore()}

	dry := ledger.NewDryRun(base)
	res, err := ledger.NewSynchronizer(dry, nil).Sync(ctx, []types.Application{app("m1", "Acme", "", "")})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.False(t, base.ensured)
	assert.Empty(t, base.Summary())
}

func assertLedgerInvariants(t *testing.T, s *ledger.MemoryStore) {
	t.Helper()
	apps, err := s.LoadApplications(context.Background())
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, a := range apps {
		assert.False(t, ids[a.MessageID], "duplicate message id %s", a.MessageID)
		ids[a.MessageID] = true
	}

	total := 0
	for _, row := range s.Summary() {
		total += row.ApplicationCount
		assert.LessOrEqual(t, row.DistinctRoleCount, row.ApplicationCount, row.Company)
	}
	assert.Equal(t, len(apps), total)
}

func TestCommitDedupWithinBatchAndPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewMemoryStore()
	sync := ledger.NewSynchronizer(s, nil)

	snap, err := sync.Open(ctx)
	require.NoError(t, err)

	res, err := sync.Commit(ctx, snap, []types.Application{
		app("m2", "Globex", "", ""),
		app("m1", "Acme", "Engineer", ""),
		app("m2", "Globex", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Added, 2)
	assert.Equal(t, "m2", res.Added[0].MessageID)
	assert.Equal(t, "m1", res.Added[1].MessageID)
	assert.True(t, snap.Seen("m1"))
	assert.Equal(t, 2, snap.Len())

	res, err = sync.Commit(ctx, snap, []types.Application{app("m3", "Acme", "Engineer", ""), app("m1", "Acme", "Engineer", "")})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)

	apps, _ := s.LoadApplications(ctx)
	order := make([]string, len(apps))
	for i, a := range apps {
		order[i] = a.MessageID
	}
	assert.Equal(t, []string{"m2", "m1", "m3"}, order)
	assertLedgerInvariants(t, s)
}

func TestSecondRunAddsNothing(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewMemoryStore()
	batch := []types.Application{app("m1", "Acme Corp", "Backend Engineer", "4821")}

	first, err := ledger.NewSynchronizer(s, nil).Sync(ctx, batch)
	require.NoError(t, err)
	second, err := ledger.NewSynchronizer(s, nil).Sync(ctx, batch)
	require.NoError(t, err)

	assert.Empty(t, second.Added)
	assert.Equal(t, first.Summary, second.Summary)
	assertLedgerInvariants(t, s)
}

func TestEmptyCommitRebuildsSummary(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewMemoryStore()
	require.NoError(t, s.Append(ctx, []types.Application{app("m1", "Acme", "A", ""), app("m2", "Acme", "A", "")}))

	res, err := ledger.NewSynchronizer(s, nil).Sync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.CompanySummary{{Company: "Acme", ApplicationCount: 2, DistinctRoleCount: 1}}, s.Summary())
	assert.Equal(t, s.Summary(), res.Summary)
}

// 中断的运行：记录已写入，标识未写入
type idlessStore struct {
	*ledger.MemoryStore
}

func (s idlessStore) LoadProcessedIDs(context.Context) ([]string, error) { return nil, nil }

func TestResumeAfterPartialAppend(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryStore()
	require.NoError(t, mem.Append(ctx, []types.Application{app("m1", "Acme", "", "")}))

	res, err := ledger.NewSynchronizer(idlessStore{mem}, nil).Sync(ctx, []types.Application{app("m1", "Acme", "", "")})
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, 1, res.Skipped)
}

type failingStore struct {
	*ledger.MemoryStore
	err error
}

func (s failingStore) Append(context.Context, []types.Application) error { return s.err }

func TestAppendFailureLeavesSnapshotUnchanged(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")
	sync := ledger.NewSynchronizer(failingStore{ledger.NewMemoryStore(), boom}, nil)

	snap, err := sync.Open(ctx)
	require.NoError(t, err)
	_, err = sync.Commit(ctx, snap, []types.Application{app("m1", "Acme", "", "")})
	require.ErrorIs(t, err, boom)
	assert.False(t, snap.Seen("m1"))
	assert.Zero(t, snap.Len())
}

func TestSummarize(t *testing.T) {
	apps := []types.Application{
		app("1", "Acme", "Engineer", "1"),
		app("2", "Globex", "Analyst", ""),
		app("3", "Acme", "Engineer", "2"),
		app("4", "Acme", "Engineer", "1"),
		app("5", "acme", "Engineer", "1"),
	}
	assert.Equal(t, []types.CompanySummary{
		{Company: "Acme", ApplicationCount: 3, DistinctRoleCount: 2},
		{Company: "Globex", ApplicationCount: 1, DistinctRoleCount: 1},
		{Company: "acme", ApplicationCount: 1, DistinctRoleCount: 1},
	}, ledger.Summarize(apps))
	assert.Empty(t, ledger.Summarize(nil))
}
