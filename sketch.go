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

// Frequency metadata for admission and eviction decisions. The sketch is a
// Count-Min variant with 4-bit saturating counters; combined with periodic
// halving it implements the freshness mechanism from the TinyLFU paper [1].
//
// [1]: https://arxiv.org/abs/1512.00727

package tollgate

import (
	"fmt"
	"math/rand"
	"time"
)

// freqDepth is the number of counter rows. Four rows keeps the collision
// error low while the per-key work stays at four nibble reads.
const freqDepth = 4

// freqSketch holds approximate access frequencies. Each counter is a nibble
// that saturates at 15, so a row packs two counters per byte. The column
// count is a power of two and indexing is a mask, never a modulus.
type freqSketch struct {
	rows [freqDepth]nibbleRow
	seed [freqDepth]uint64
	mask uint64
}

func newFreqSketch(numCounters int64) *freqSketch {
	if numCounters <= 0 {
		panic("freqSketch: bad numCounters")
	}
	numCounters = nextPow2(numCounters)
	s := &freqSketch{mask: uint64(numCounters - 1)}
	// Each row multiplies the key by its own odd seed and takes high bits as
	// the column, so a single pathological key can't collide in every row at
	// once. Crypto-quality randomness isn't needed.
	source := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	for i := 0; i < freqDepth; i++ {
		s.seed[i] = source.Uint64() | 1
		s.rows[i] = newNibbleRow(numCounters)
	}
	return s
}

// Increment bumps the counter for hashed in every row, saturating at 15.
func (s *freqSketch) Increment(hashed uint64) {
	for i := range s.rows {
		s.rows[i].increment(((hashed * s.seed[i]) >> 32) & s.mask)
	}
}

// Estimate returns the smallest counter value for hashed across all rows.
// The minimum bounds the overestimation error inherent to Count-Min.
func (s *freqSketch) Estimate(hashed uint64) int64 {
	min := byte(255)
	for i := range s.rows {
		if v := s.rows[i].get(((hashed * s.seed[i]) >> 32) & s.mask); v < min {
			min = v
		}
	}
	return int64(min)
}

// Reset halves every counter. Relative ordering between keys survives the
// halving, which is all the admission inequality needs.
func (s *freqSketch) Reset() {
	for _, r := range s.rows {
		r.reset()
	}
}

// Clear zeroes every counter.
func (s *freqSketch) Clear() {
	for _, r := range s.rows {
		r.clear()
	}
}

// nibbleRow is a row of bytes, each byte holding two 4-bit counters.
type nibbleRow []byte

func newNibbleRow(numCounters int64) nibbleRow {
	return make(nibbleRow, numCounters/2)
}

func (r nibbleRow) get(n uint64) byte {
	return (r[n/2] >> ((n & 1) * 4)) & 0x0f
}

func (r nibbleRow) increment(n uint64) {
	i := n / 2
	// Shift distance: even counters live in the low nibble, odd in the high.
	shift := (n & 1) * 4
	v := (r[i] >> shift) & 0x0f
	// Saturate instead of wrapping; a wrap would turn the hottest keys into
	// the first eviction victims.
	if v < 15 {
		r[i] += 1 << shift
	}
}

func (r nibbleRow) reset() {
	for i := range r {
		r[i] = (r[i] >> 1) & 0x77
	}
}

func (r nibbleRow) clear() {
	for i := range r {
		r[i] = 0
	}
}

func (r nibbleRow) string() string {
	s := ""
	for i := uint64(0); i < uint64(len(r)*2); i++ {
		s += fmt.Sprintf("%02d ", (r[i/2]>>((i&1)*4))&0x0f)
	}
	return s[:len(s)-1]
}

// nextPow2 rounds x up to the next power of 2, if it's not already one.
func nextPow2(x int64) int64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}
