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
	"encoding/binary"
	"math"

	"github.com/dgryski/go-farm"
)

// doorkeeper is the one-bit "seen at least once" Bloom filter described in
// section 3.4.2 of the TinyLFU paper. It keeps one-hit wonders from ever
// consuming sketch capacity: a key's first appearance only marks the filter,
// and the frequency sketch is touched from the second appearance on.
type doorkeeper struct {
	bits   []uint64
	mask   uint64
	probes uint64
}

// newDoorkeeper sizes the filter for capacity expected keys at the given
// false-positive rate. The bit count is rounded up to a power of two so
// probe placement is a mask.
func newDoorkeeper(capacity int64, falsePositive float64) *doorkeeper {
	if capacity < 1 {
		capacity = 1
	}
	m := -1 * float64(capacity) * math.Log(falsePositive) / (math.Ln2 * math.Ln2)
	nbits := uint64(nextPow2(int64(math.Ceil(m))))
	if nbits < 64 {
		nbits = 64
	}
	probes := uint64(math.Ceil(math.Ln2 * float64(nbits) / float64(capacity)))
	if probes < 1 {
		probes = 1
	}
	return &doorkeeper{
		bits:   make([]uint64, nbits/64),
		mask:   nbits - 1,
		probes: probes,
	}
}

// probeStride derives a second, independent hash from the primary so the
// filter can place its probes by double hashing. The stride is forced odd,
// keeping every probe position distinct under the power-of-two mask.
func probeStride(hashed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], hashed)
	return farm.Fingerprint64(buf[:]) | 1
}

// Insert sets the key's bits and reports whether every bit was already set,
// i.e. whether the key had (probably) been seen before.
func (d *doorkeeper) Insert(hashed uint64) bool {
	stride := probeStride(hashed)
	seen := true
	for i := uint64(0); i < d.probes; i++ {
		pos := (hashed + i*stride) & d.mask
		if d.bits[pos>>6]&(1<<(pos&63)) == 0 {
			seen = false
			d.bits[pos>>6] |= 1 << (pos & 63)
		}
	}
	return seen
}

// Has reports whether the key's bits are all set without mutating the filter.
func (d *doorkeeper) Has(hashed uint64) bool {
	stride := probeStride(hashed)
	for i := uint64(0); i < d.probes; i++ {
		pos := (hashed + i*stride) & d.mask
		if d.bits[pos>>6]&(1<<(pos&63)) == 0 {
			return false
		}
	}
	return true
}

// Reset zeroes the filter.
func (d *doorkeeper) Reset() {
	for i := range d.bits {
		d.bits[i] = 0
	}
}
