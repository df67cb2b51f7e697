// Package cache 统计结果缓存：字节级存储（进程内存或Redis）加过期后后台刷新。
package cache

import (
	"context"
	"time"
)

// Store 键值存储，ttl 不大于0表示不过期
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
