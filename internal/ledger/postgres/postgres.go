// Package postgres 基于 PostgreSQL 的账本。
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS applications (
	seq          BIGSERIAL PRIMARY KEY,
	message_id   TEXT NOT NULL UNIQUE,
	company      TEXT NOT NULL,
	role_title   TEXT NOT NULL DEFAULT '',
	job_id       TEXT NOT NULL DEFAULT '',
	date_applied DATE NOT NULL,
	thread_url   TEXT NOT NULL DEFAULT '',
	sender       TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS processed_message_ids (
	message_id   TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS company_summary (
	position            INTEGER PRIMARY KEY,
	company             TEXT NOT NULL,
	application_count   INTEGER NOT NULL,
	distinct_role_count INTEGER NOT NULL
);
`

type Store struct {
	db *pgxpool.Pool
}

// Connect 建立连接池并检查连通性
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	logger.Info("PostgreSQL connection established",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("db", poolCfg.ConnConfig.Database),
	)
	return &Store{db: pool}, nil
}

func (s *Store) Ensure(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Exists 两张账本表是否都已创建
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT to_regclass('applications') IS NOT NULL
		   AND to_regclass('processed_message_ids') IS NOT NULL`).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check schema: %w", err)
	}
	return ok, nil
}

func (s *Store) LoadApplications(ctx context.Context) ([]types.Application, error) {
	rows, err := s.db.Query(ctx, `
		SELECT company, role_title, job_id, date_applied, message_id, sender, subject, thread_url
		FROM applications ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []types.Application
	for rows.Next() {
		var a types.Application
		if err := rows.Scan(&a.Company, &a.RoleTitle, &a.JobID, &a.DateApplied, &a.MessageID, &a.From, &a.Subject, &a.ThreadURL); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		y, m, d := a.DateApplied.Date()
		a.DateApplied = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT message_id FROM processed_message_ids`)
	if err != nil {
		return nil, fmt.Errorf("query processed ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan processed ids: %w", err)
	}
	return ids, nil
}

// Append 记录和标识在同一事务中批量写入
func (s *Store) Append(ctx context.Context, apps []types.Application) error {
	if len(apps) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range apps {
			batch.Queue(`
				INSERT INTO applications
					(message_id, company, role_title, job_id, date_applied, thread_url, sender, subject)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (message_id) DO NOTHING`,
				a.MessageID, a.Company, a.RoleTitle, a.JobID, a.DateApplied, a.ThreadURL, a.From, a.Subject,
			)
			batch.Queue(`INSERT INTO processed_message_ids (message_id) VALUES ($1) ON CONFLICT DO NOTHING`, a.MessageID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
		return nil
	})
}

func (s *Store) ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM company_summary`); err != nil {
			return fmt.Errorf("clear summary: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"company_summary"},
			[]string{"position", "company", "application_count", "distinct_role_count"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{int32(i), r.Company, int32(r.ApplicationCount), int32(r.DistinctRoleCount)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy summary: %w", err)
		}
		return nil
	})
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
