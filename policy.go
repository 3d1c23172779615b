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
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// sampleSize is the number of keys sampled when looking for an eviction
// victim. Five gives victim quality within a constant factor of exact LFU
// while keeping each admission O(sampleSize).
const sampleSize = 5

// policyPair carries a victim's key hash and ledger cost out of Add.
type policyPair struct {
	key  uint64
	cost int64
}

// defaultPolicy composes TinyLFU admission with sampled-LFU eviction. All
// frequency and cost state is guarded by mu; access batches arrive on
// itemsCh and are folded into the admitter by a dedicated goroutine.
type defaultPolicy struct {
	mu      sync.Mutex
	admit   *tinyLFU
	costs   *keyCosts
	itemsCh chan []uint64
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	metrics *Metrics
}

func newDefaultPolicy(numCounters, maxCost int64, log zerolog.Logger) *defaultPolicy {
	p := &defaultPolicy{
		admit:   newTinyLFU(numCounters, log),
		costs:   newKeyCosts(maxCost),
		itemsCh: make(chan []uint64, 3),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.processItems()
	return p
}

func (p *defaultPolicy) CollectMetrics(metrics *Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = metrics
}

func (p *defaultPolicy) processItems() {
	for {
		select {
		case items := <-p.itemsCh:
			p.mu.Lock()
			p.admit.Push(items)
			p.mu.Unlock()
		case <-p.stop:
			close(p.done)
			return
		}
	}
}

// Push hands a drained access batch to the policy. It never blocks: if the
// policy is behind, the batch is dropped. Access hints are advisory, so loss
// only costs a little admission accuracy.
func (p *defaultPolicy) Push(keys []uint64) bool {
	if p.closed.Load() || len(keys) == 0 {
		return true
	}
	select {
	case p.itemsCh <- keys:
		p.metrics.add(keepGets, keys[0], uint64(len(keys)))
		return true
	default:
		p.metrics.add(dropGets, keys[0], uint64(len(keys)))
		return false
	}
}

// Add attempts to admit the key/cost pair. It returns the victims evicted to
// make room and whether the key was admitted. Keys already in the ledger are
// updated in place and never face the admitter.
func (p *defaultPolicy) Add(key uint64, cost int64) ([]policyPair, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cost > p.costs.MaxCost() {
		return nil, false
	}

	if p.costs.updateIfHas(key, cost) {
		return nil, true
	}

	if p.costs.roomLeft(cost) >= 0 {
		p.costs.add(key, cost)
		return nil, true
	}

	incHits := p.admit.Estimate(key)
	sample := make([]policyPair, 0, sampleSize)
	var victims []policyPair
	for p.costs.roomLeft(cost) < 0 {
		sample = p.costs.fillSample(sample)
		if len(sample) == 0 {
			return victims, false
		}
		minKey, minHits, minID, minCost := uint64(0), int64(math.MaxInt64), 0, int64(0)
		for i, pair := range sample {
			hits := p.admit.Estimate(pair.key)
			if hits < minHits || (hits == minHits && pair.cost < minCost) {
				minKey, minHits, minID, minCost = pair.key, hits, i, pair.cost
			}
		}
		// The candidate must strictly beat the weakest sampled incumbent.
		// Ties keep the incumbent; evictions already performed on earlier
		// iterations stand.
		if incHits <= minHits {
			return victims, false
		}
		p.costs.del(minKey)
		sample[minID] = sample[len(sample)-1]
		sample = sample[:len(sample)-1]
		victims = append(victims, policyPair{minKey, minCost})
	}
	p.costs.add(key, cost)
	return victims, true
}

func (p *defaultPolicy) Has(key uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.costs.cost[key]
	return exists
}

func (p *defaultPolicy) Del(key uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.costs.del(key)
}

// Cost returns the ledger cost for key, or -1 if the key isn't tracked.
func (p *defaultPolicy) Cost(key uint64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cost, found := p.costs.cost[key]; found {
		return cost
	}
	return -1
}

func (p *defaultPolicy) Update(key uint64, cost int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.costs.updateIfHas(key, cost)
}

// Cap returns the remaining room under the cost ceiling.
func (p *defaultPolicy) Cap() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.costs.MaxCost() - p.costs.used
}

func (p *defaultPolicy) MaxCost() int64 {
	return p.costs.MaxCost()
}

func (p *defaultPolicy) UpdateMaxCost(maxCost int64) {
	p.costs.UpdateMaxCost(maxCost)
}

// Clear drops any pending access batches, then zeroes the admitter and the
// cost ledger. A batch applied after a clear would poison a fresh sketch, so
// pending batches are discarded rather than folded in.
func (p *defaultPolicy) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
drain:
	for {
		select {
		case <-p.itemsCh:
		default:
			break drain
		}
	}
	p.admit.Clear()
	p.costs.clear()
}

func (p *defaultPolicy) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.stop)
	<-p.done
	close(p.itemsCh)
}

// keyCosts is the cost ledger behind sampled-LFU eviction. The invariant
// sum(cost) == used holds whenever the policy mutex is released.
type keyCosts struct {
	maxCost atomic.Int64
	used    int64
	cost    map[uint64]int64
}

func newKeyCosts(maxCost int64) *keyCosts {
	kc := &keyCosts{cost: make(map[uint64]int64)}
	kc.maxCost.Store(maxCost)
	return kc
}

func (kc *keyCosts) MaxCost() int64 {
	return kc.maxCost.Load()
}

func (kc *keyCosts) UpdateMaxCost(maxCost int64) {
	kc.maxCost.Store(maxCost)
}

// roomLeft is the space remaining if an entry of the given cost were added.
func (kc *keyCosts) roomLeft(cost int64) int64 {
	return kc.MaxCost() - (kc.used + cost)
}

// fillSample tops the sample back up to sampleSize entries. Map iteration
// order supplies the randomness. Zero-cost entries occupy no budget and are
// removed only by explicit delete, expiry or clear, so they never enter the
// victim pool.
func (kc *keyCosts) fillSample(in []policyPair) []policyPair {
	if len(in) >= sampleSize {
		return in
	}
	for key, cost := range kc.cost {
		if cost == 0 {
			continue
		}
		in = append(in, policyPair{key, cost})
		if len(in) >= sampleSize {
			return in
		}
	}
	return in
}

func (kc *keyCosts) add(key uint64, cost int64) {
	kc.cost[key] = cost
	kc.used += cost
}

func (kc *keyCosts) updateIfHas(key uint64, cost int64) bool {
	prev, found := kc.cost[key]
	if !found {
		return false
	}
	kc.used += cost - prev
	kc.cost[key] = cost
	return true
}

func (kc *keyCosts) del(key uint64) {
	cost, found := kc.cost[key]
	if !found {
		return
	}
	kc.used -= cost
	delete(kc.cost, key)
}

func (kc *keyCosts) clear() {
	kc.used = 0
	kc.cost = make(map[uint64]int64)
}

// tinyLFU gates the sketch behind the doorkeeper and owns the freshness
// reset. Callers hold the policy mutex.
type tinyLFU struct {
	freq    *freqSketch
	door    *doorkeeper
	incrs   int64
	resetAt int64
	log     zerolog.Logger
}

func newTinyLFU(numCounters int64, log zerolog.Logger) *tinyLFU {
	return &tinyLFU{
		freq:    newFreqSketch(numCounters),
		door:    newDoorkeeper(numCounters, 0.01),
		resetAt: numCounters * 10,
		log:     log,
	}
}

func (t *tinyLFU) Push(keys []uint64) {
	for _, key := range keys {
		t.Increment(key)
	}
}

// Estimate models the doorkeeper bit as the lowest-order frequency: a key
// that has only ever been seen once estimates to 1.
func (t *tinyLFU) Estimate(key uint64) int64 {
	hits := t.freq.Estimate(key)
	if t.door.Has(key) {
		hits++
	}
	return hits
}

func (t *tinyLFU) Increment(key uint64) {
	// A first sighting only marks the doorkeeper; the sketch is reserved
	// for keys seen at least twice.
	if seen := t.door.Insert(key); seen {
		t.freq.Increment(key)
	}
	t.incrs++
	if t.incrs >= t.resetAt {
		t.reset()
	}
}

func (t *tinyLFU) reset() {
	t.log.Debug().Int64("samples", t.incrs).Msg("halving frequency sketch")
	t.door.Reset()
	t.freq.Reset()
	t.incrs = 0
}

func (t *tinyLFU) Clear() {
	t.door.Reset()
	t.freq.Clear()
	t.incrs = 0
}
