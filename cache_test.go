/*
 * Copyright 2026 Tollgate Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tollgate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const wait = time.Millisecond * 10

func newTestCache(t *testing.T) *Cache[uint64, int] {
	t.Helper()
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
		Metrics:     true,
		KeyToHash:   KeyToHash[uint64],
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewCache(t *testing.T) {
	_, err := NewCache(&Config[uint64, int]{KeyToHash: KeyToHash[uint64]})
	require.Error(t, err)

	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		KeyToHash:   KeyToHash[uint64],
		Metrics:     true,
	})
	require.NoError(t, err)
	require.NotNil(t, c.Metrics)
	c.Close()
}

func TestNilCache(t *testing.T) {
	var c *Cache[uint64, int]
	require.False(t, c.Set(1, 1, 1))
	_, ok := c.Get(1)
	require.False(t, ok)
	_, ok = c.GetTTL(1)
	require.False(t, ok)
	c.Del(1)
	c.Clear()
	c.Wait()
	c.Close()
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	require.True(t, c.Set(1, 100, 1))
	c.Wait()
	val, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, 100, val)

	_, ok = c.Get(2)
	require.False(t, ok)
	require.Equal(t, uint64(1), c.Metrics.Hits())
	require.Equal(t, uint64(1), c.Metrics.Misses())
}

func TestCacheSetOverwrite(t *testing.T) {
	c := newTestCache(t)
	require.True(t, c.Set(1, 100, 1))
	c.Wait()
	require.True(t, c.Set(1, 200, 1))
	// Updates apply on the calling goroutine, before Wait.
	val, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, 200, val)
	c.Wait()
	require.Equal(t, uint64(1), c.Metrics.KeysAdded())
	require.Equal(t, uint64(1), c.Metrics.KeysUpdated())
}

func TestCacheOversizedItem(t *testing.T) {
	c := newTestCache(t)
	require.False(t, c.Set(1, 1, 11))
	require.Equal(t, uint64(1), c.Metrics.SetsDropped())
	c.Wait()
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestCacheCostFunction(t *testing.T) {
	c, err := NewCache(&Config[string, string]{
		NumCounters: 100,
		MaxCost:     100,
		KeyToHash:   KeyToHash[string],
		Metrics:     true,
		Cost:        func(v string) int64 { return int64(len(v)) },
	})
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Set("a", "four", 0))
	c.Wait()
	require.Equal(t, uint64(4), c.Metrics.CostAdded())

	// An explicit cost wins over the cost function.
	require.True(t, c.Set("b", "four", 2))
	c.Wait()
	require.Equal(t, uint64(6), c.Metrics.CostAdded())
}

func TestCacheEviction(t *testing.T) {
	evicted := make(map[uint64]struct{})
	var mu sync.Mutex
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		// Drain every access hint immediately so warming is deterministic.
		BufferItems: 1,
		Metrics:     true,
		KeyToHash:   KeyToHash[uint64],
		OnEvict: func(i *Item[int]) {
			mu.Lock()
			evicted[i.Key] = struct{}{}
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer c.Close()

	for i := uint64(0); i < 10; i++ {
		require.True(t, c.Set(i, int(i), 1))
		c.Wait()
	}
	// Warm a subset so the admitter knows they're worth keeping.
	for j := 0; j < 10; j++ {
		for i := uint64(0); i < 5; i++ {
			c.Get(i)
		}
	}
	time.Sleep(wait)

	admitted := 0
	for i := uint64(10); i < 20; i++ {
		if c.Set(i, int(i), 1) {
			c.Wait()
		}
	}
	for i := uint64(0); i < 5; i++ {
		if _, ok := c.Get(i); ok {
			admitted++
		}
	}
	// The warm keys should have survived the cold insert pressure.
	require.NotZero(t, admitted)
	mu.Lock()
	for i := uint64(0); i < 5; i++ {
		_, gone := evicted[i]
		require.False(t, gone, "warm key %d was evicted", i)
	}
	mu.Unlock()
}

func TestCacheColdSetRejected(t *testing.T) {
	c := newTestCache(t)
	for i := uint64(0); i < 10; i++ {
		require.True(t, c.Set(i, int(i), 1))
		c.Wait()
	}
	// A never-seen key against a full cache loses the admission contest.
	require.True(t, c.Set(100, 100, 1))
	c.Wait()
	_, ok := c.Get(100)
	require.False(t, ok)
	require.NotZero(t, c.Metrics.SetsRejected())
}

func TestCacheDel(t *testing.T) {
	c := newTestCache(t)
	c.Set(1, 1, 1)
	c.Wait()
	c.Del(1)
	c.Wait()
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t)
	for i := uint64(0); i < 10; i++ {
		c.Set(i, int(i), 1)
	}
	c.Wait()
	c.Clear()
	require.Equal(t, uint64(0), c.Metrics.KeysAdded())
	for i := uint64(0); i < 10; i++ {
		_, ok := c.Get(i)
		require.False(t, ok)
	}
	// The cache keeps working after a clear.
	require.True(t, c.Set(1, 1, 1))
	c.Wait()
	_, ok := c.Get(1)
	require.True(t, ok)
}

func TestCacheTTL(t *testing.T) {
	mock := clock.NewMock()
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		KeyToHash:   KeyToHash[uint64],
		Clock:       mock,
	})
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.SetWithTTL(1, 1, 1, time.Second))
	require.False(t, c.SetWithTTL(2, 2, 1, -time.Second))
	c.Wait()

	ttl, ok := c.GetTTL(1)
	require.True(t, ok)
	require.Equal(t, time.Second, ttl)

	mock.Add(2 * time.Second)
	_, ok = c.Get(1)
	require.False(t, ok)
	_, ok = c.GetTTL(1)
	require.False(t, ok)
}

func TestCacheTTLNoExpiration(t *testing.T) {
	c := newTestCache(t)
	require.True(t, c.Set(1, 1, 1))
	c.Wait()
	ttl, ok := c.GetTTL(1)
	require.True(t, ok)
	require.Equal(t, time.Duration(0), ttl)
}

func TestCacheCleanupSweep(t *testing.T) {
	mock := clock.NewMock()
	evicted := make(chan uint64, 1)
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		KeyToHash:   KeyToHash[uint64],
		Clock:       mock,
		OnEvict:     func(i *Item[int]) { evicted <- i.Key },
	})
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.SetWithTTL(1, 1, 1, time.Second))
	c.Wait()

	// Step through the sweep windows so the ticker fires with the entry's
	// bucket as the one to retire.
	for i := 0; i < 4; i++ {
		mock.Add(bucketDurationSecs * time.Second / 2)
		time.Sleep(wait)
	}
	select {
	case key := <-evicted:
		require.Equal(t, uint64(1), key)
	case <-time.After(time.Second):
		t.Fatal("expired entry was never swept")
	}
}

func TestCacheUpdateMaxCost(t *testing.T) {
	c := newTestCache(t)
	require.Equal(t, int64(10), c.MaxCost())
	c.UpdateMaxCost(100)
	require.Equal(t, int64(100), c.MaxCost())
	require.True(t, c.Set(1, 1, 50))
	c.Wait()
	_, ok := c.Get(1)
	require.True(t, ok)
}

func TestCacheClose(t *testing.T) {
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 100,
		MaxCost:     10,
		KeyToHash:   KeyToHash[uint64],
	})
	require.NoError(t, err)
	c.Set(1, 1, 1)
	c.Close()

	require.False(t, c.Set(2, 2, 1))
	_, ok := c.Get(1)
	require.False(t, ok)
	c.Del(1)
	c.Clear()
	c.Wait()
	c.Close() // closing twice is fine
}

func TestCacheSetFlood(t *testing.T) {
	c := newTestCache(t)
	// Writes beyond the buffer are shed, never blocked on, and the cache
	// stays usable afterwards.
	for i := 0; i < setBufSize*2; i++ {
		c.Set(uint64(i%128), i, 1)
	}
	c.Wait()
	require.True(t, c.Set(1, 1, 1))
	c.Wait()
}

func TestCacheMetricsString(t *testing.T) {
	c := newTestCache(t)
	c.Set(1, 1, 1)
	c.Wait()
	c.Get(1)
	require.Contains(t, c.Metrics.String(), "hit:")
}

func TestCacheStringKeys(t *testing.T) {
	c, err := NewCache(&Config[string, string]{
		NumCounters: 100,
		MaxCost:     100,
		KeyToHash:   KeyToHash[string],
	})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.True(t, c.Set(key, key, 1))
	}
	c.Wait()
	val, ok := c.Get("key-3")
	require.True(t, ok)
	require.Equal(t, "key-3", val)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c, err := NewCache(&Config[uint64, int]{
		NumCounters: 1000,
		MaxCost:     100,
		KeyToHash:   KeyToHash[uint64],
	})
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				key := (seed*1000 + i) % 64
				c.Set(key, int(key), 1)
				c.Get(key)
				if i%100 == 0 {
					c.Del(key)
				}
			}
		}(uint64(g))
	}
	wg.Wait()
	c.Wait()
}
