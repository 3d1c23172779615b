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
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a key on a cache miss.
type LoadFunc[K Key, V any] func(ctx context.Context, key K) (V, error)

// flightGroups shards single-flight state by key hash so unrelated misses
// rarely serialize on one group's mutex; keys whose hashes agree modulo 64
// share a group.
type flightGroups[V any] struct {
	groups [64]singleflight.Group
}

func newFlightGroups[V any]() *flightGroups[V] {
	return &flightGroups[V]{}
}

func (f *flightGroups[V]) group(hash uint64) *singleflight.Group {
	return &f.groups[hash%uint64(len(f.groups))]
}

// GetOrLoad returns the cached value for key, or runs load to produce it.
// Concurrent misses for the same key collapse into a single load call; the
// loaded value is stored with cost 0 so the Cost function prices it.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load LoadFunc[K, V]) (V, error) {
	if c == nil || c.isClosed() {
		var zero V
		return zero, ErrClosed
	}
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	keyHash, _ := c.keyToHash(key)
	flightKey := strconv.FormatUint(keyHash, 36)
	v, err, _ := c.flights.group(keyHash).Do(flightKey, func() (interface{}, error) {
		// A racing flight may have stored the value between the miss
		// and acquiring the flight.
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, 0)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
