package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cache: порт кэша. Инвалидация best-effort: ошибки логируются, но не откатывают заказ.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (noopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (noopCache) Del(context.Context, ...string) error                  { return nil }
func (noopCache) DelPattern(context.Context, string) error              { return nil }

// NoopCache используется, когда Redis выключен.
func NoopCache() Cache { return noopCache{} }

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func orderListCachePattern(userID uuid.UUID) string {
	return fmt.Sprintf("orders:user:%s:*", userID)
}

func orderListCacheKey(userID uuid.UUID, f ListFilter) string {
	status := "all"
	if f.Status != nil {
		status = string(*f.Status)
	}
	return fmt.Sprintf("orders:user:%s:%s:%d:%d", userID, status, f.Limit, f.Offset)
}
