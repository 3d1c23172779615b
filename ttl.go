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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// bucketDurationSecs is the granularity of the expiration sweep. Entries
// landing in the same 5 second window expire together.
const bucketDurationSecs = 5

// storageBucket assigns an expiration time to a bucket number. The +1 keeps
// an entry out of the bucket currently being swept.
func storageBucket(t time.Time) int64 {
	return (t.Unix() / bucketDurationSecs) + 1
}

// cleanupBucket is the bucket whose entries are guaranteed expired by t.
func cleanupBucket(t time.Time) int64 {
	return storageBucket(t) - 1
}

// bucket maps key hashes to conflict hashes.
type bucket map[uint64]uint64

// expirationMap groups expiring entries by coarse bucket so the sweeper can
// retire a whole window at a time instead of scanning the store.
type expirationMap[V any] struct {
	sync.Mutex
	buckets map[int64]bucket
	clk     clock.Clock
}

func newExpirationMap[V any](clk clock.Clock) *expirationMap[V] {
	return &expirationMap[V]{
		buckets: make(map[int64]bucket),
		clk:     clk,
	}
}

func (m *expirationMap[V]) add(key, conflict uint64, expiration time.Time) {
	if m == nil {
		return
	}
	// Entries that don't expire have no business in the expiration map.
	if expiration.IsZero() {
		return
	}
	bucketNum := storageBucket(expiration)
	m.Lock()
	defer m.Unlock()
	b, ok := m.buckets[bucketNum]
	if !ok {
		b = make(bucket)
		m.buckets[bucketNum] = b
	}
	b[key] = conflict
}

func (m *expirationMap[V]) update(key, conflict uint64, oldExp, newExp time.Time) {
	if m == nil {
		return
	}
	m.Lock()
	defer m.Unlock()
	if !oldExp.IsZero() {
		oldBucketNum := storageBucket(oldExp)
		if b, ok := m.buckets[oldBucketNum]; ok {
			delete(b, key)
		}
	}
	if newExp.IsZero() {
		return
	}
	newBucketNum := storageBucket(newExp)
	b, ok := m.buckets[newBucketNum]
	if !ok {
		b = make(bucket)
		m.buckets[newBucketNum] = b
	}
	b[key] = conflict
}

func (m *expirationMap[V]) del(key uint64, expiration time.Time) {
	if m == nil || expiration.IsZero() {
		return
	}
	bucketNum := storageBucket(expiration)
	m.Lock()
	defer m.Unlock()
	if b, ok := m.buckets[bucketNum]; ok {
		delete(b, key)
	}
}

// cleanup retires the most recently completed bucket: every entry in it is
// removed from the store and the policy, and handed to onEvict. Entries
// whose expiration was pushed forward since they were bucketed are skipped.
func (m *expirationMap[V]) cleanup(sm *shardedMap[V], policy *defaultPolicy, onEvict func(*Item[V])) {
	if m == nil {
		return
	}
	now := m.clk.Now()
	bucketNum := cleanupBucket(now)
	m.Lock()
	keys := m.buckets[bucketNum]
	delete(m.buckets, bucketNum)
	m.Unlock()

	for key, conflict := range keys {
		if sm.Expiration(key).After(now) {
			continue
		}
		cost := policy.Cost(key)
		policy.Del(key)
		_, value := sm.Del(key, conflict)
		if onEvict != nil {
			onEvict(&Item[V]{
				Key:      key,
				Conflict: conflict,
				Value:    value,
				Cost:     cost,
			})
		}
	}
}

func (m *expirationMap[V]) clear() {
	if m == nil {
		return
	}
	m.Lock()
	m.buckets = make(map[int64]bucket)
	m.Unlock()
}
