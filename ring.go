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
)

// ringConsumer receives drained access batches. A false return means the
// consumer could not keep the batch and the producer should reuse it.
type ringConsumer interface {
	Push([]uint64) bool
}

// ringStripe is a fixed-capacity buffer of recently read key hashes, owned
// by one goroutine at a time. Accumulating reads per stripe keeps readers
// from ever contending on the policy mutex.
type ringStripe struct {
	cons ringConsumer
	data []uint64
	capa int
}

func newRingStripe(cons ringConsumer, capa int64) *ringStripe {
	return &ringStripe{
		cons: cons,
		data: make([]uint64, 0, capa),
		capa: int(capa),
	}
}

// Push appends an access to the stripe and drains the stripe into the
// consumer once full. If the consumer declines the batch, the stripe is
// reused in place and the accesses are lost, which is acceptable because
// access hints are advisory.
func (s *ringStripe) Push(item uint64) {
	s.data = append(s.data, item)
	if len(s.data) >= s.capa {
		if s.cons.Push(s.data) {
			s.data = make([]uint64, 0, s.capa)
		} else {
			s.data = s.data[:0]
		}
	}
}

// ringBuffer stripes accesses across per-P stripes via a sync.Pool. The pool
// gives each logical processor its own stripe in the steady state, so Push
// is contention-free without any explicit thread registry.
type ringBuffer struct {
	pool *sync.Pool
}

func newRingBuffer(cons ringConsumer, capa int64) *ringBuffer {
	return &ringBuffer{
		pool: &sync.Pool{
			New: func() interface{} { return newRingStripe(cons, capa) },
		},
	}
}

// Push records an access for the given key hash.
func (b *ringBuffer) Push(item uint64) {
	stripe := b.pool.Get().(*ringStripe)
	stripe.Push(item)
	b.pool.Put(stripe)
}
