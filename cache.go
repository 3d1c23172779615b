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

// Package tollgate is a concurrent, cost-bounded in-memory cache. Admission
// is decided by a TinyLFU frequency sketch and eviction by sampled LFU, so
// the cache converges on keeping the entries with the best frequency per
// unit of cost. Reads are buffered and lossy; writes flow through a single
// worker goroutine, and buffered reads are folded into the admitter by a
// separate policy goroutine.
package tollgate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// setBufSize is the capacity of the mutation channel. Mutations beyond this
// backlog are dropped rather than letting callers block.
const setBufSize = 32 * 1024

type itemFlag byte

const (
	itemNew itemFlag = iota
	itemUpdate
	itemDelete
	itemClear
)

// Item carries one mutation through the setBuf and is also the shape handed
// to OnEvict callbacks.
type Item[V any] struct {
	flag       itemFlag
	Key        uint64
	Conflict   uint64
	Value      V
	Cost       int64
	Expiration time.Time
	wg         *sync.WaitGroup
}

// Cache is a concurrent cache with TinyLFU admission and sampled-LFU
// eviction. All methods are safe for concurrent use. The zero value is not
// usable; construct with NewCache.
type Cache[K Key, V any] struct {
	storedItems   *shardedMap[V]
	policy        *defaultPolicy
	getBuf        *ringBuffer
	setBuf        chan *Item[V]
	stop          chan struct{}
	done          chan struct{}
	closed        atomic.Bool
	clk           clock.Clock
	cleanupTicker *clock.Ticker
	keyToHash     func(K) (uint64, uint64)
	cost          func(V) int64
	onEvict       func(*Item[V])
	flights       *flightGroups[V]
	log           zerolog.Logger

	// Metrics is non-nil when Config.Metrics was set and accumulates
	// counters for the lifetime of the cache.
	Metrics *Metrics
}

// NewCache builds a cache from the given config. The config is validated
// and missing optional fields are filled with defaults.
func NewCache[K Key, V any](config *Config[K, V]) (*Cache[K, V], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}
	c := &Cache[K, V]{
		storedItems:   newShardedMap[V](clk),
		policy:        newDefaultPolicy(config.NumCounters, config.MaxCost, log),
		setBuf:        make(chan *Item[V], setBufSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		clk:           clk,
		cleanupTicker: clk.Ticker(bucketDurationSecs * time.Second / 2),
		keyToHash:     config.KeyToHash,
		cost:          config.Cost,
		onEvict:       config.OnEvict,
		flights:       newFlightGroups[V](),
		log:           log,
	}
	c.getBuf = newRingBuffer(c.policy, config.BufferItems)
	if config.Metrics {
		c.Metrics = newMetrics()
		c.policy.CollectMetrics(c.Metrics)
	}
	c.log.Debug().
		Str("max-cost", humanize.Comma(config.MaxCost)).
		Int64("num-counters", config.NumCounters).
		Msg("cache started")
	go c.processItems()
	return c, nil
}

// Get returns the value for key and whether it was found. Every call, hit
// or miss, records an access hint that raises the key's admission frequency.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if c == nil || c.isClosed() {
		var zero V
		return zero, false
	}
	keyHash, conflictHash := c.keyToHash(key)
	c.getBuf.Push(keyHash)
	value, ok := c.storedItems.Get(keyHash, conflictHash)
	if ok {
		c.Metrics.add(hit, keyHash, 1)
	} else {
		c.Metrics.add(miss, keyHash, 1)
	}
	return value, ok
}

// Set stores the key/value pair with the given cost and no expiration. A
// cost of zero defers to the configured Cost function when one exists. Set
// returning true only means the mutation was enqueued; admission may still
// reject it. Call Wait to observe the outcome.
func (c *Cache[K, V]) Set(key K, value V, cost int64) bool {
	return c.SetWithTTL(key, value, cost, 0)
}

// SetWithTTL is Set with a relative expiration. A zero ttl means the entry
// never expires; a negative ttl drops the set.
func (c *Cache[K, V]) SetWithTTL(key K, value V, cost int64, ttl time.Duration) bool {
	if c == nil || c.isClosed() {
		return false
	}
	var expiration time.Time
	switch {
	case ttl == 0:
	case ttl < 0:
		return false
	default:
		expiration = c.clk.Now().Add(ttl)
	}
	keyHash, conflictHash := c.keyToHash(key)
	if cost == 0 && c.cost != nil {
		cost = c.cost(value)
	}
	// Entries that could never fit are dropped on the caller's thread so
	// they don't waste a trip through the worker.
	if cost > c.policy.MaxCost() {
		c.Metrics.add(dropSets, keyHash, 1)
		return false
	}
	i := &Item[V]{
		flag:       itemNew,
		Key:        keyHash,
		Conflict:   conflictHash,
		Value:      value,
		Cost:       cost,
		Expiration: expiration,
	}
	// Updates take effect immediately on the caller's thread; only the
	// cost adjustment rides the setBuf.
	if _, ok := c.storedItems.Update(i); ok {
		i.flag = itemUpdate
	}
	select {
	case c.setBuf <- i:
		return true
	default:
		if i.flag == itemUpdate {
			// The value is already visible; losing the cost update is
			// tolerable.
			return true
		}
		c.Metrics.add(dropSets, keyHash, 1)
		return false
	}
}

// Del removes the key from the cache if present.
func (c *Cache[K, V]) Del(key K) {
	if c == nil || c.isClosed() {
		return
	}
	keyHash, conflictHash := c.keyToHash(key)
	select {
	case c.setBuf <- &Item[V]{flag: itemDelete, Key: keyHash, Conflict: conflictHash}:
	default:
	}
}

// GetTTL returns the time remaining until key expires. A found entry with
// no expiration returns zero with ok true.
func (c *Cache[K, V]) GetTTL(key K) (time.Duration, bool) {
	if c == nil || c.isClosed() {
		return 0, false
	}
	keyHash, conflictHash := c.keyToHash(key)
	if _, ok := c.storedItems.Get(keyHash, conflictHash); !ok {
		return 0, false
	}
	expiration := c.storedItems.Expiration(keyHash)
	if expiration.IsZero() {
		return 0, true
	}
	return expiration.Sub(c.clk.Now()), true
}

// Wait blocks until every mutation enqueued before the call has been
// applied by the worker.
func (c *Cache[K, V]) Wait() {
	if c == nil || c.isClosed() {
		return
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.setBuf <- &Item[V]{wg: wg}
	wg.Wait()
}

// Clear empties the cache and resets the policy and metrics. It blocks
// until the worker has processed the clear.
func (c *Cache[K, V]) Clear() {
	if c == nil || c.isClosed() {
		return
	}
	c.setBuf <- &Item[V]{flag: itemClear}
	c.Wait()
}

// MaxCost returns the current cost ceiling.
func (c *Cache[K, V]) MaxCost() int64 {
	if c == nil {
		return 0
	}
	return c.policy.MaxCost()
}

// UpdateMaxCost changes the cost ceiling. Shrinking does not evict
// immediately; the surplus drains as future admissions force evictions.
func (c *Cache[K, V]) UpdateMaxCost(maxCost int64) {
	if c == nil || c.isClosed() {
		return
	}
	c.policy.UpdateMaxCost(maxCost)
}

// Close shuts the cache down. Pending mutations are applied first, then the
// worker and the policy goroutine exit. All methods are no-ops afterwards.
func (c *Cache[K, V]) Close() {
	if c == nil || c.closed.Swap(true) {
		return
	}
	// Flush what was enqueued before the flag flipped.
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.setBuf <- &Item[V]{wg: wg}
	wg.Wait()
	close(c.stop)
	<-c.done
	c.cleanupTicker.Stop()
	c.policy.Close()
	c.log.Debug().Msg("cache closed")
}

func (c *Cache[K, V]) isClosed() bool {
	return c.closed.Load()
}

// processItems is the single worker that owns all mutation ordering. Every
// structural change to the store and the policy happens here.
func (c *Cache[K, V]) processItems() {
	for {
		select {
		case i := <-c.setBuf:
			if i.wg != nil {
				i.wg.Done()
				continue
			}
			switch i.flag {
			case itemNew:
				// A conflicting entry under the same key hash would
				// silently swallow the store, so reject before the
				// policy records any cost.
				if c.storedItems.Conflicts(i.Key, i.Conflict) {
					c.Metrics.add(rejectSets, i.Key, 1)
					break
				}
				victims, added := c.policy.Add(i.Key, i.Cost)
				if added {
					c.storedItems.Set(i)
					c.Metrics.add(keyAdd, i.Key, 1)
					c.Metrics.add(costAdd, i.Key, uint64(i.Cost))
				} else {
					c.Metrics.add(rejectSets, i.Key, 1)
				}
				for _, victim := range victims {
					conflict, value := c.storedItems.Del(victim.key, 0)
					c.evict(&Item[V]{
						Key:      victim.key,
						Conflict: conflict,
						Value:    value,
						Cost:     victim.cost,
					})
				}
			case itemUpdate:
				c.policy.Update(i.Key, i.Cost)
				c.Metrics.add(keyUpdate, i.Key, 1)
			case itemDelete:
				c.policy.Del(i.Key)
				c.storedItems.Del(i.Key, i.Conflict)
			case itemClear:
				c.policy.Clear()
				c.storedItems.Clear(c.onEvict)
				c.Metrics.Clear()
				c.log.Debug().Msg("cache cleared")
			}
		case <-c.cleanupTicker.C:
			c.storedItems.Cleanup(c.policy, c.evict)
		case <-c.stop:
			close(c.done)
			return
		}
	}
}

func (c *Cache[K, V]) evict(i *Item[V]) {
	c.Metrics.add(keyEvict, i.Key, 1)
	c.Metrics.add(costEvict, i.Key, uint64(i.Cost))
	if c.onEvict != nil {
		c.onEvict(i)
	}
}
