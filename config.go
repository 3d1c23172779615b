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
	"os"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNumCounters is returned when Config.NumCounters is zero or negative.
	ErrNumCounters = errors.New("NumCounters must be positive")
	// ErrMaxCost is returned when Config.MaxCost is zero or negative.
	ErrMaxCost = errors.New("MaxCost must be positive")
	// ErrBufferItems is returned when Config.BufferItems is negative.
	ErrBufferItems = errors.New("BufferItems must not be negative")
	// ErrKeyToHash is returned when Config.KeyToHash is nil.
	ErrKeyToHash = errors.New("KeyToHash function is required")
	// ErrClosed is returned by operations that cannot report failure
	// silently when the cache has been closed.
	ErrClosed = errors.New("cache is closed")
)

// Config parameterizes NewCache. NumCounters, MaxCost and KeyToHash are
// required; everything else has a usable default.
type Config[K Key, V any] struct {
	// NumCounters is the number of 4-bit frequency counters to allocate.
	// A good value is 10x the expected number of live entries.
	NumCounters int64

	// MaxCost is the cost ceiling the cache enforces. A new entry is admitted
	// only if the total cost fits under it after evictions. Cost changes of
	// already stored entries and a lowered ceiling do not evict, so the total
	// can stay above it until later admissions force evictions.
	MaxCost int64

	// BufferItems is the per-stripe capacity of the get buffer. Defaults
	// to 64, which is the right answer for nearly everyone.
	BufferItems int64

	// Metrics enables counter collection on the Metrics field.
	Metrics bool

	// KeyToHash maps a key to a primary hash and a conflict hash. Use
	// KeyToHash (the package function) unless keys need custom hashing.
	KeyToHash func(K) (uint64, uint64)

	// Cost computes the cost of a value when Set is called with cost 0.
	// Optional; without it a zero-cost Set stores a zero-cost entry.
	Cost func(V) int64

	// OnEvict runs for every entry leaving the cache through eviction,
	// expiry or Clear. It runs on the worker goroutine, so keep it fast.
	OnEvict func(*Item[V])

	// Logger receives debug-level lifecycle events. Nil disables logging.
	Logger *zerolog.Logger

	// Clock is the time source, swappable for tests. Nil means wall clock.
	Clock clock.Clock
}

func (c *Config[K, V]) validate() error {
	switch {
	case c == nil:
		return errors.New("config must not be nil")
	case c.NumCounters <= 0:
		return ErrNumCounters
	case c.MaxCost <= 0:
		return ErrMaxCost
	case c.BufferItems < 0:
		return ErrBufferItems
	case c.KeyToHash == nil:
		return ErrKeyToHash
	}
	if c.BufferItems == 0 {
		c.BufferItems = 64
	}
	return nil
}

// fileConfig is the on-disk shape of a cache config.
type fileConfig struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
	Metrics     bool  `yaml:"metrics"`
}

// LoadConfig reads cache sizing from a YAML file. Function-valued fields
// cannot live in a file, so KeyToHash is filled with the package default
// and the rest are left for the caller.
func LoadConfig[K Key, V any](path string) (*Config[K, V], error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return &Config[K, V]{
		NumCounters: fc.NumCounters,
		MaxCost:     fc.MaxCost,
		BufferItems: fc.BufferItems,
		Metrics:     fc.Metrics,
		KeyToHash:   KeyToHash[K],
	}, nil
}
