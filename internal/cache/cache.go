// Package cache 提供有界的进程内 TTL 缓存，用于在认证路径上避免每次请求都
// 访问数据库。容量与 TTL 在构造时固定；过期条目在访问时惰性清除，没有后台
// 清扫协程，Set 在容量满时先清扫过期条目、仍满则按插入顺序淘汰最老的一条。
package cache

import (
	"container/list"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
	elem      *list.Element
}

// Cache 键到 (值, 绝对过期时间) 的有界映射
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*item[V]
	order   *list.List // 插入顺序，front 为最老
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New 创建缓存实例；ttl 与 maxSize 非法时回退到默认值
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache[V]{
		items:   make(map[string]*item[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get 返回未过期的值；过期条目在此处被清除并视为不存在
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	it, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(it.expiresAt) {
		c.remove(key, it)
		return zero, false
	}
	return it.value, true
}

// Set 写入条目。容量满时先清扫过期条目，仍满则淘汰最早插入的条目
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		c.remove(key, it)
	}

	if len(c.items) >= c.maxSize {
		c.sweep()
		if len(c.items) >= c.maxSize {
			if oldest := c.order.Front(); oldest != nil {
				k := oldest.Value.(string)
				c.remove(k, c.items[k])
			}
		}
	}

	it := &item[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	it.elem = c.order.PushBack(key)
	c.items[key] = it
}

// Del 无条件删除，键不存在时为空操作
func (c *Cache[V]) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		c.remove(key, it)
	}
}

// Len 当前条目数（含尚未被触碰的过期条目）
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear 清空全部条目
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item[V])
	c.order.Init()
}

// sweep 清除所有已过期条目，仅在 Set 内部机会性调用
func (c *Cache[V]) sweep() {
	now := c.now()
	for key, it := range c.items {
		if !now.Before(it.expiresAt) {
			c.remove(key, it)
		}
	}
}

func (c *Cache[V]) remove(key string, it *item[V]) {
	c.order.Remove(it.elem)
	delete(c.items, key)
}
