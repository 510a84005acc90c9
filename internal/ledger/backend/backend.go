// Package backend 根据配置选择账本实现。
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/auth"
	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/exporter"
	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/ledger/postgres"
	"github.com/YKarmar/appledger/internal/ledger/redis"
	"github.com/YKarmar/appledger/internal/ledger/sheets"
	"github.com/YKarmar/appledger/internal/ledger/sqlite"
)

var ErrUnknownBackend = errors.New("unknown ledger backend")

// Open 打开配置指定的账本
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (ledger.Store, error) {
	lc := cfg.Ledger
	switch lc.Backend {
	case config.BackendSheets:
		httpClient, err := auth.HTTPClient(ctx, cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("google auth: %w", err)
		}
		return sheets.New(ctx, httpClient, lc.SheetID, sheets.Tables{
			Applications: lc.ApplicationsTable,
			Processed:    lc.ProcessedTable,
			Summary:      lc.SummaryTable,
		})
	case config.BackendSQLite:
		return sqlite.Open(lc.Path)
	case config.BackendPostgres:
		return postgres.Connect(ctx, lc.DSN, log)
	case config.BackendRedis:
		return redis.Dial(ctx, lc.Redis.Addr, lc.Redis.Password, lc.Redis.DB, lc.Redis.Prefix)
	case config.BackendCSV:
		return exporter.NewCSVExporter(lc.Path), nil
	case config.BackendMemory:
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, lc.Backend)
	}
}
