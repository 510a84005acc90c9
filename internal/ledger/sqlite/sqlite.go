// Package sqlite 基于 SQLite 文件的账本。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YKarmar/appledger/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS applications (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   TEXT NOT NULL UNIQUE,
	company      TEXT NOT NULL,
	role_title   TEXT NOT NULL DEFAULT '',
	job_id       TEXT NOT NULL DEFAULT '',
	date_applied TEXT NOT NULL,
	thread_url   TEXT NOT NULL DEFAULT '',
	sender       TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS processed_message_ids (
	message_id   TEXT PRIMARY KEY,
	processed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS company_summary (
	position            INTEGER PRIMARY KEY,
	company             TEXT NOT NULL,
	application_count   INTEGER NOT NULL,
	distinct_role_count INTEGER NOT NULL
);
`

type Store struct {
	db   *sql.DB
	path string
}

// Open 准备 SQLite 连接。文件在第一次执行语句时才创建
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单写者
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

// Exists 在不创建文件的前提下检查两张账本表是否存在
func (s *Store) Exists(ctx context.Context) (bool, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('applications', 'processed_message_ids')`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check schema: %w", err)
	}
	return n == 2, nil
}

func (s *Store) Ensure(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) LoadApplications(ctx context.Context) ([]types.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company, role_title, job_id, date_applied, message_id, sender, subject, thread_url
		FROM applications ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []types.Application
	for rows.Next() {
		var a types.Application
		var date string
		if err := rows.Scan(&a.Company, &a.RoleTitle, &a.JobID, &date, &a.MessageID, &a.From, &a.Subject, &a.ThreadURL); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		if t, err := time.Parse(types.DateLayout, date); err == nil {
			a.DateApplied = t
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM processed_message_ids`)
	if err != nil {
		return nil, fmt.Errorf("query processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Append 记录和标识在同一事务中写入
func (s *Store) Append(ctx context.Context, apps []types.Application) error {
	if len(apps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, a := range apps {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO applications
				(message_id, company, role_title, job_id, date_applied, thread_url, sender, subject)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.MessageID, a.Company, a.RoleTitle, a.JobID, a.DateApplied.Format(types.DateLayout), a.ThreadURL, a.From, a.Subject,
		); err != nil {
			return fmt.Errorf("insert application %s: %w", a.MessageID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed_message_ids (message_id, processed_at) VALUES (?, ?)`,
			a.MessageID, now,
		); err != nil {
			return fmt.Errorf("insert processed id %s: %w", a.MessageID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM company_summary`); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	for i, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO company_summary (position, company, application_count, distinct_role_count) VALUES (?, ?, ?, ?)`,
			i, r.Company, r.ApplicationCount, r.DistinctRoleCount,
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", r.Company, err)
		}
	}
	return tx.Commit()
}

// Summary 按写入顺序读取汇总
func (s *Store) Summary(ctx context.Context) ([]types.CompanySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company, application_count, distinct_role_count FROM company_summary ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []types.CompanySummary
	for rows.Next() {
		var r types.CompanySummary
		if err := rows.Scan(&r.Company, &r.ApplicationCount, &r.DistinctRoleCount); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
