package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// staleFactor 过期后旧值继续保留的倍数
const staleFactor = 24

// Submitter 后台任务提交，由 worker.Queue 实现
type Submitter interface {
	Submit(name string, fn func(ctx context.Context) error) (string, error)
}

type entry struct {
	StoredAt int64           `json:"stored_at"` // UnixNano
	Value    json.RawMessage `json:"value"`
}

// SWR 过期后仍返回旧值，同时提交后台刷新；同一个键同时只有一个刷新任务
type SWR struct {
	store  Store
	queue  Submitter
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewSWR(store Store, queue Submitter, logger *logrus.Logger) *SWR {
	return &SWR{
		store:    store,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// GetOrRefresh 命中且未过期直接返回；过期返回旧值并后台刷新；未命中同步计算。
// 计算结果（包括 nil）都会写入缓存。
func GetOrRefresh[T any](ctx context.Context, c *SWR, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if v, storedAt, ok := load[T](ctx, c, key); ok {
		if c.now().Sub(storedAt) >= ttl {
			c.refresh(key, func(ctx context.Context) error {
				v, err := compute(ctx)
				if err != nil {
					return err
				}
				return c.put(ctx, key, ttl, v)
			})
		}
		return v, nil
	}

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.put(ctx, key, ttl, v); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("写入缓存失败")
	}
	return v, nil
}

func load[T any](ctx context.Context, c *SWR, key string) (T, time.Time, bool) {
	var v T
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("读取缓存失败")
		return v, time.Time{}, false
	}
	if !found {
		return v, time.Time{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return v, time.Time{}, false
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, time.Time{}, false
	}
	return v, time.Unix(0, e.StoredAt), true
}

func (c *SWR) put(ctx context.Context, key string, ttl time.Duration, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化缓存值失败: %w", err)
	}
	raw, err := json.Marshal(entry{StoredAt: c.now().UnixNano(), Value: value})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, raw, ttl*staleFactor)
}

func (c *SWR) refresh(key string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	task := func(ctx context.Context) error {
		defer c.done(key)
		return fn(ctx)
	}
	if c.queue == nil {
		go func() {
			if err := task(context.Background()); err != nil {
				c.logger.WithError(err).WithField("key", key).Error("缓存刷新失败")
			}
		}()
		return
	}
	if _, err := c.queue.Submit("cache:"+key, task); err != nil {
		c.done(key)
		c.logger.WithError(err).WithField("key", key).Warn("提交缓存刷新任务失败")
	}
}

func (c *SWR) done(key string) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
}

// Invalidate 删除缓存，下一次读取同步计算
func (c *SWR) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
