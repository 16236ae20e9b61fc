package cache

import (
	"context"
	"time"

	"github.com/BaSui01/structgen/structured"
	"go.uber.org/zap"
)

// ResultKeyPrefix 结果缓存键前缀
const ResultKeyPrefix = "structgen:result:"

// ResultStore 基于 Manager 实现 structured.ResultCache
type ResultStore struct {
	manager *Manager
	logger  *zap.Logger
}

var _ structured.ResultCache = (*ResultStore)(nil)

// NewResultStore 创建结果缓存
func NewResultStore(manager *Manager, logger *zap.Logger) *ResultStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{manager: manager, logger: logger.With(zap.String("component", "result_cache"))}
}

// Lookup 读取缓存结果。Redis 故障或数据损坏都按未命中处理。
func (s *ResultStore) Lookup(ctx context.Context, key string) (structured.Value, bool) {
	raw, err := s.manager.Get(ctx, ResultKeyPrefix+key)
	if err != nil {
		if !IsCacheMiss(err) {
			s.logger.Warn("result cache lookup failed", zap.Error(err))
		}
		return structured.Value{}, false
	}

	v, err := structured.ParseValue(raw)
	if err != nil || v.Kind() != structured.KindObject {
		s.logger.Warn("discarding corrupt cached result", zap.String("key", key))
		_ = s.manager.Delete(ctx, ResultKeyPrefix+key)
		return structured.Value{}, false
	}
	return v, true
}

// Store 写入结果，失败只记录日志
func (s *ResultStore) Store(ctx context.Context, key string, result structured.Value, ttl time.Duration) {
	data, err := result.MarshalJSON()
	if err != nil {
		s.logger.Warn("result cache encode failed", zap.Error(err))
		return
	}
	if err := s.manager.Set(ctx, ResultKeyPrefix+key, data, ttl); err != nil {
		s.logger.Warn("result cache store failed", zap.Error(err))
	}
}
