package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/types"
)

// Snapshot 本次运行开始时的账本状态，随 Commit 更新
type Snapshot struct {
	apps []types.Application
	seen map[string]struct{}
}

func newSnapshot(apps []types.Application, ids []string) *Snapshot {
	s := &Snapshot{
		apps: apps,
		seen: make(map[string]struct{}, len(apps)+len(ids)),
	}
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	// 记录已追加但标识未写入时（中断的运行）同样视为已处理
	for _, a := range apps {
		s.seen[a.MessageID] = struct{}{}
	}
	return s
}

// Seen 消息是否已在账本中
func (s *Snapshot) Seen(messageID string) bool {
	_, ok := s.seen[messageID]
	return ok
}

// Applications 返回账本记录的副本
func (s *Snapshot) Applications() []types.Application {
	return append([]types.Application(nil), s.apps...)
}

func (s *Snapshot) Len() int {
	return len(s.apps)
}

type SyncResult struct {
	Added   []types.Application
	Skipped int
	Summary []types.CompanySummary
}

// Synchronizer 幂等地把新记录合并进账本
type Synchronizer struct {
	store Store
	log   *zap.Logger
}

func NewSynchronizer(store Store, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{store: store, log: log}
}

// Open 确保区域存在并读取账本和已处理标识
func (s *Synchronizer) Open(ctx context.Context) (*Snapshot, error) {
	if err := s.store.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}
	apps, err := s.store.LoadApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	ids, err := s.store.LoadProcessedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}
	snap := newSnapshot(apps, ids)
	s.log.Info("Ledger opened",
		zap.Int("applications", len(apps)),
		zap.Int("processed_ids", len(ids)),
	)
	return snap, nil
}

// Commit 跳过已见过的消息，按首次出现顺序追加，然后重建汇总。
// 空批次也会重建汇总
func (s *Synchronizer) Commit(ctx context.Context, snap *Snapshot, batch []types.Application) (SyncResult, error) {
	var res SyncResult
	pending := make(map[string]struct{}, len(batch))
	for _, app := range batch {
		if snap.Seen(app.MessageID) {
			res.Skipped++
			continue
		}
		if _, dup := pending[app.MessageID]; dup {
			res.Skipped++
			continue
		}
		pending[app.MessageID] = struct{}{}
		res.Added = append(res.Added, app)
	}

	if len(res.Added) > 0 {
		if err := s.store.Append(ctx, res.Added); err != nil {
			return SyncResult{}, fmt.Errorf("append %d applications: %w", len(res.Added), err)
		}
		for _, app := range res.Added {
			snap.apps = append(snap.apps, app)
			snap.seen[app.MessageID] = struct{}{}
		}
	}

	res.Summary = Summarize(snap.apps)
	if err := s.store.ReplaceSummary(ctx, res.Summary); err != nil {
		return res, fmt.Errorf("replace summary: %w", err)
	}

	s.log.Info("Ledger synchronized",
		zap.Int("added", len(res.Added)),
		zap.Int("skipped", res.Skipped),
		zap.Int("ledger_size", len(snap.apps)),
		zap.Int("companies", len(res.Summary)),
	)
	return res, nil
}

// Sync 打开账本并提交一个批次
func (s *Synchronizer) Sync(ctx context.Context, batch []types.Application) (SyncResult, error) {
	snap, err := s.Open(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	return s.Commit(ctx, snap, batch)
}
