package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
)

// OpenRedis：按地址打开 Redis 客户端；未配置地址时返回 nil
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	logger.L().Debug("redis_open", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// 文档注释：Redis 文档存储
// 背景：多实例部署时渲染端可能命中任一实例，文档以 JSON 存入 Redis 并设置 TTL。
// 约束：HasCredential 的文档一律拒绝（ErrCredentialBearing），凭证不会离开进程内存。
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{rc: rc, ttl: ttl}
}

func (s *Redis) Get(ctx context.Context, session string, gen uint64) (document.Document, error) {
	b, err := s.rc.Get(ctx, Key(session, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.DocStoreMissesTotal.WithLabelValues("redis").Inc()
		return document.Document{}, ErrNotFound
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("docstore: redis get: %w", err)
	}
	var doc document.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document.Document{}, fmt.Errorf("docstore: decode: %w", err)
	}
	metrics.DocStoreHitsTotal.WithLabelValues("redis").Inc()
	return doc, nil
}

func (s *Redis) Put(ctx context.Context, doc document.Document) error {
	if doc.HasCredential {
		return ErrCredentialBearing
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode: %w", err)
	}
	if err := s.rc.Set(ctx, Key(doc.Session, doc.Generation), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("docstore: redis set: %w", err)
	}
	return nil
}

// Forget：按前缀 SCAN 删除会话的全部文档
func (s *Redis) Forget(ctx context.Context, session string) error {
	iter := s.rc.Scan(ctx, 0, keyPrefix+session+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("docstore: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rc.Del(ctx, keys...).Err()
}
