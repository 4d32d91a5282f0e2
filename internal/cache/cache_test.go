package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*Cache[string], *fakeClock) {
	c := New[string](ttl, maxSize)
	clock := newFakeClock()
	c.now = clock.Now
	return c, clock
}

func TestCache_GetSet(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Set("k", "v")

	// TTL 内可读
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	// 恰好到达 TTL 时视为过期
	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// 过期条目在 Get 时被清除
	assert.Equal(t, 0, c.Len())
}

func TestCache_Del(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)

	c.Set("k", "v")
	c.Del("k")

	_, ok := c.Get("k")
	assert.False(t, ok)

	// 删除不存在的键不报错
	c.Del("missing")
}

func TestCache_EvictOldestInserted(t *testing.T) {
	c, _ := newTestCache(time.Hour, 3)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// 读取 a 不改变淘汰顺序（按插入序而非 LRU）
	_, _ = c.Get("a")

	c.Set("d", "4")

	_, ok := c.Get("a")
	assert.False(t, ok, "最早插入的条目应被淘汰")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_SweepBeforeEvict(t *testing.T) {
	c, clock := newTestCache(time.Minute, 2)

	c.Set("a", "1")
	clock.Advance(2 * time.Minute) // a 过期
	c.Set("b", "2")

	// 容量已满但存在过期条目，清扫后无需淘汰 b
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_SetOverwrite(t *testing.T) {
	c, _ := newTestCache(time.Hour, 2)

	c.Set("k", "v1")
	c.Set("k", "v2")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("key-%d", j%10)
				c.Set(key, n)
				c.Get(key)
				if j%7 == 0 {
					c.Del(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}
