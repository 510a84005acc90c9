package ledger

import (
	"context"

	"github.com/YKarmar/appledger/internal/types"
)

// MemoryStore 进程内账本
type MemoryStore struct {
	apps    []types.Application
	ids     []string
	summary []types.CompanySummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Ensure(context.Context) error { return nil }

func (m *MemoryStore) LoadApplications(context.Context) ([]types.Application, error) {
	return append([]types.Application(nil), m.apps...), nil
}

func (m *MemoryStore) LoadProcessedIDs(context.Context) ([]string, error) {
	return append([]string(nil), m.ids...), nil
}

func (m *MemoryStore) Append(_ context.Context, apps []types.Application) error {
	m.apps = append(m.apps, apps...)
	for _, a := range apps {
		m.ids = append(m.ids, a.MessageID)
	}
	return nil
}

func (m *MemoryStore) ReplaceSummary(_ context.Context, rows []types.CompanySummary) error {
	m.summary = append([]types.CompanySummary(nil), rows...)
	return nil
}

// Summary 返回最近一次写入的汇总
func (m *MemoryStore) Summary() []types.CompanySummary {
	return append([]types.CompanySummary(nil), m.summary...)
}

func (m *MemoryStore) Close() error { return nil }

// DryRun 读取真实账本，写入只落在内存。不会在真实账本上创建区域
type DryRun struct {
	base    Store
	overlay *MemoryStore
	missing bool
}

func NewDryRun(base Store) *DryRun {
	return &DryRun{base: base, overlay: NewMemoryStore()}
}

// Ensure 不实现 Prober 的账本（Redis、内存）读取缺失区域时本就返回空
func (d *DryRun) Ensure(ctx context.Context) error {
	p, ok := d.base.(Prober)
	if !ok {
		return nil
	}
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	d.missing = !exists
	return nil
}

func (d *DryRun) LoadApplications(ctx context.Context) ([]types.Application, error) {
	if d.missing {
		return d.overlay.LoadApplications(ctx)
	}
	apps, err := d.base.LoadApplications(ctx)
	if err != nil {
		return nil, err
	}
	extra, _ := d.overlay.LoadApplications(ctx)
	return append(apps, extra...), nil
}

func (d *DryRun) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	if d.missing {
		return d.overlay.LoadProcessedIDs(ctx)
	}
	ids, err := d.base.LoadProcessedIDs(ctx)
	if err != nil {
		return nil, err
	}
	extra, _ := d.overlay.LoadProcessedIDs(ctx)
	return append(ids, extra...), nil
}

func (d *DryRun) Append(ctx context.Context, apps []types.Application) error {
	return d.overlay.Append(ctx, apps)
}

func (d *DryRun) ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error {
	return d.overlay.ReplaceSummary(ctx, rows)
}

// Summary 返回本次演练得到的汇总
func (d *DryRun) Summary() []types.CompanySummary {
	return d.overlay.Summary()
}

func (d *DryRun) Close() error {
	return d.base.Close()
}
