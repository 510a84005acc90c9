// Package redis 基于 Redis 的账本：记录为 JSON 列表，已处理标识为集合。
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/YKarmar/appledger/internal/types"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

func NewStore(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial 创建客户端并检查连通性
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewStore(rdb, prefix), nil
}

func (s *Store) key(region string) string {
	return s.prefix + ":" + region
}

// Ensure 键在首次写入时自动创建
func (s *Store) Ensure(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) LoadApplications(ctx context.Context) ([]types.Application, error) {
	raw, err := s.rdb.LRange(ctx, s.key("applications"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	apps := make([]types.Application, 0, len(raw))
	for _, r := range raw {
		var a types.Application
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			return nil, fmt.Errorf("decode application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, nil
}

func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("processed")).Result()
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}
	return ids, nil
}

// Append 在一个 MULTI/EXEC 中写入记录和标识
func (s *Store) Append(ctx context.Context, apps []types.Application) error {
	if len(apps) == 0 {
		return nil
	}
	rows := make([]any, 0, len(apps))
	ids := make([]any, 0, len(apps))
	for _, a := range apps {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode application %s: %w", a.MessageID, err)
		}
		rows = append(rows, b)
		ids = append(ids, a.MessageID)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key("applications"), rows...)
		pipe.SAdd(ctx, s.key("processed"), ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append applications: %w", err)
	}
	return nil
}

func (s *Store) ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error {
	encoded := make([]any, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode summary %s: %w", r.Company, err)
		}
		encoded = append(encoded, b)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("summary"))
		if len(encoded) > 0 {
			pipe.RPush(ctx, s.key("summary"), encoded...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace summary: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
