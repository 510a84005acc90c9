// Package ledger 维护申请账本：按消息标识去重追加，并从完整账本重建公司汇总。
//
// 账本由三个区域组成：Applications（有序追加）、ProcessedMessageIds（只增集合）
// 和 CompanySummary（每次全量覆盖）。具体存储由 Store 实现，首次使用时自动创建。
package ledger

import (
	"context"

	"github.com/YKarmar/appledger/internal/types"
)

// Store 持久化账本。实现假定单写者，不做加锁
type Store interface {
	// Ensure 创建缺失的区域和表头，可重复调用
	Ensure(ctx context.Context) error
	// LoadApplications 按追加顺序返回全部记录
	LoadApplications(ctx context.Context) ([]types.Application, error)
	LoadProcessedIDs(ctx context.Context) ([]string, error)
	// Append 先追加记录再追加其消息标识
	Append(ctx context.Context, apps []types.Application) error
	// ReplaceSummary 全量覆盖汇总区域
	ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error
	Close() error
}

// Prober 可选接口：只检查账本区域是否已存在，不创建任何东西。
// 演练模式用它代替 Ensure，区域不存在时按空账本处理
type Prober interface {
	Exists(ctx context.Context) (bool, error)
}
