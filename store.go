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
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zhangyunhao116/skipmap"
)

// storeItem is the unit of storage. The conflict hash disambiguates keys
// whose primary hashes collide.
type storeItem[V any] struct {
	key        uint64
	conflict   uint64
	value      V
	expiration time.Time
}

const numShards uint64 = 256

// shardedMap spreads entries over 256 lock-free shards keyed by the low
// byte of the key hash, and keeps the expiration index in lockstep with
// every mutation.
type shardedMap[V any] struct {
	shards []*mapShard[V]
	em     *expirationMap[V]
	clk    clock.Clock
}

func newShardedMap[V any](clk clock.Clock) *shardedMap[V] {
	sm := &shardedMap[V]{
		shards: make([]*mapShard[V], int(numShards)),
		em:     newExpirationMap[V](clk),
		clk:    clk,
	}
	for i := range sm.shards {
		sm.shards[i] = newMapShard[V](clk)
	}
	return sm
}

func (sm *shardedMap[V]) Get(key, conflict uint64) (V, bool) {
	return sm.shards[key%numShards].get(key, conflict)
}

func (sm *shardedMap[V]) Expiration(key uint64) time.Time {
	return sm.shards[key%numShards].expiration(key)
}

func (sm *shardedMap[V]) Set(i *Item[V]) {
	if i == nil {
		return
	}
	sm.shards[i.Key%numShards].set(sm.em, i)
}

func (sm *shardedMap[V]) Del(key, conflict uint64) (uint64, V) {
	return sm.shards[key%numShards].del(sm.em, key, conflict)
}

func (sm *shardedMap[V]) Update(newItem *Item[V]) (V, bool) {
	return sm.shards[newItem.Key%numShards].update(sm.em, newItem)
}

// Conflicts reports whether setting the given key/conflict pair would be
// refused because an entry with the same key hash but a different conflict
// hash is already stored.
func (sm *shardedMap[V]) Conflicts(key, conflict uint64) bool {
	return sm.shards[key%numShards].conflicts(key, conflict)
}

func (sm *shardedMap[V]) Cleanup(policy *defaultPolicy, onEvict func(*Item[V])) {
	sm.em.cleanup(sm, policy, onEvict)
}

func (sm *shardedMap[V]) Clear(onEvict func(*Item[V])) {
	for i := range sm.shards {
		sm.shards[i].clear(onEvict)
	}
	sm.em.clear()
}

// mapShard wraps a lock-free skip map behind an atomic pointer so Clear can
// swap in a fresh map without blocking concurrent readers.
type mapShard[V any] struct {
	data atomic.Pointer[skipmap.Uint64Map[storeItem[V]]]
	clk  clock.Clock
}

func newMapShard[V any](clk clock.Clock) *mapShard[V] {
	s := &mapShard[V]{clk: clk}
	s.data.Store(skipmap.NewUint64[storeItem[V]]())
	return s
}

func (m *mapShard[V]) get(key, conflict uint64) (V, bool) {
	item, ok := m.data.Load().Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	if conflict != 0 && conflict != item.conflict {
		var zero V
		return zero, false
	}
	// Expired entries are invisible to readers even before the sweeper
	// gets to them.
	if !item.expiration.IsZero() && m.clk.Now().After(item.expiration) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (m *mapShard[V]) expiration(key uint64) time.Time {
	item, ok := m.data.Load().Load(key)
	if !ok {
		return time.Time{}
	}
	return item.expiration
}

func (m *mapShard[V]) set(em *expirationMap[V], i *Item[V]) {
	data := m.data.Load()
	prev, ok := data.Load(i.Key)
	if ok {
		// A stored entry with a different conflict hash wins over the
		// incoming write.
		if i.Conflict != 0 && i.Conflict != prev.conflict {
			return
		}
		em.update(i.Key, i.Conflict, prev.expiration, i.Expiration)
	} else {
		em.add(i.Key, i.Conflict, i.Expiration)
	}
	data.Store(i.Key, storeItem[V]{
		key:        i.Key,
		conflict:   i.Conflict,
		value:      i.Value,
		expiration: i.Expiration,
	})
}

func (m *mapShard[V]) del(em *expirationMap[V], key, conflict uint64) (uint64, V) {
	data := m.data.Load()
	item, ok := data.Load(key)
	if !ok {
		var zero V
		return 0, zero
	}
	if conflict != 0 && conflict != item.conflict {
		var zero V
		return 0, zero
	}
	if !item.expiration.IsZero() {
		em.del(key, item.expiration)
	}
	data.Delete(key)
	return item.conflict, item.value
}

// update replaces the value of an existing entry in place. It reports false
// without storing anything when the key is absent or the conflict hashes
// disagree, so callers can fall back to the admission path.
func (m *mapShard[V]) update(em *expirationMap[V], newItem *Item[V]) (V, bool) {
	data := m.data.Load()
	item, ok := data.Load(newItem.Key)
	if !ok {
		var zero V
		return zero, false
	}
	if newItem.Conflict != 0 && newItem.Conflict != item.conflict {
		var zero V
		return zero, false
	}
	em.update(newItem.Key, newItem.Conflict, item.expiration, newItem.Expiration)
	data.Store(newItem.Key, storeItem[V]{
		key:        newItem.Key,
		conflict:   newItem.Conflict,
		value:      newItem.Value,
		expiration: newItem.Expiration,
	})
	return item.value, true
}

func (m *mapShard[V]) conflicts(key, conflict uint64) bool {
	if conflict == 0 {
		return false
	}
	item, ok := m.data.Load().Load(key)
	return ok && item.conflict != 0 && item.conflict != conflict
}

func (m *mapShard[V]) clear(onEvict func(*Item[V])) {
	data := m.data.Load()
	if onEvict != nil {
		data.Range(func(key uint64, item storeItem[V]) bool {
			onEvict(&Item[V]{
				Key:      key,
				Conflict: item.conflict,
				Value:    item.value,
			})
			return true
		})
	}
	m.data.Store(skipmap.NewUint64[storeItem[V]]())
}
