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
	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Key is the set of key types the stock KeyToHash function understands.
// Custom key types are supported by supplying your own hashing callback in
// the Config.
type Key interface {
	uint64 | string | []byte | byte | int | int32 | uint32 | int64
}

// KeyToHash is the stock hashing callback. It returns the primary hash used
// for placement and frequency tracking, and a conflict hash used to detect
// collisions on the primary. Integer keys are their own primary hash and
// carry no conflict hash, so collision checking degenerates to trusting the
// integer itself.
func KeyToHash[K Key](key K) (uint64, uint64) {
	switch k := any(key).(type) {
	case uint64:
		return k, 0
	case string:
		return xxhash.Sum64String(k), xxh3.HashString(k)
	case []byte:
		return xxhash.Sum64(k), xxh3.Hash(k)
	case byte:
		return uint64(k), 0
	case int:
		return uint64(k), 0
	case int32:
		return uint64(k), 0
	case uint32:
		return uint64(k), 0
	case int64:
		return uint64(k), 0
	default:
		panic("key type outside the Key constraint")
	}
}
