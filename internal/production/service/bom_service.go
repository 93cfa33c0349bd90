package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StructureSource resolves an item's production structure. The ERP client
// satisfies this; tests substitute a stub.
type StructureSource interface {
	GetProductionStructure(ctx context.Context, itemCode string) (*erp.Structure, error)
}

const structureCachePrefix = "bom:structure:"

// BOMService resolves bills of material from the ERP with a redis cache in
// front. Cache failures degrade to a direct fetch.
type BOMService struct {
	source StructureSource
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewBOMService(source StructureSource, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *BOMService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &BOMService{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

// Resolve returns the item's structure. An item without a BOM resolves to an
// empty structure, not an error; the ERP being unreachable surfaces as
// ExternalUnavailableError.
func (s *BOMService) Resolve(ctx context.Context, itemCode string, bypassCache bool) (*erp.Structure, error) {
	key := structureCachePrefix + itemCode
	if s.rdb != nil && !bypassCache {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var st erp.Structure
			if err := json.Unmarshal(raw, &st); err == nil {
				return &st, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("structure cache read failed", zap.String("item", itemCode), zap.Error(err))
		}
	}

	st, err := s.source.GetProductionStructure(ctx, itemCode)
	if err != nil {
		var unavail *erp.UnavailableError
		if errors.As(err, &unavail) {
			return nil, &ExternalUnavailableError{Err: err}
		}
		return nil, fmt.Errorf("resolve structure of %s: %w", itemCode, err)
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(st); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("structure cache write failed", zap.String("item", itemCode), zap.Error(err))
			}
		}
	}
	return st, nil
}

// ResolveRequired behaves like Resolve but treats an empty BOM as
// ErrExternalEmpty.
func (s *BOMService) ResolveRequired(ctx context.Context, itemCode string, bypassCache bool) (*erp.Structure, error) {
	st, err := s.Resolve(ctx, itemCode, bypassCache)
	if err != nil {
		return nil, err
	}
	if len(st.Items) == 0 {
		return nil, fmt.Errorf("item %s: %w", itemCode, ErrExternalEmpty)
	}
	return st, nil
}

// Invalidate drops the cached structure of an item.
func (s *BOMService) Invalidate(ctx context.Context, itemCode string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, structureCachePrefix+itemCode).Err(); err != nil {
		s.logger.Warn("structure cache invalidation failed", zap.String("item", itemCode), zap.Error(err))
	}
}
