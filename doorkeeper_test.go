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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoorkeeperInsert(t *testing.T) {
	d := newDoorkeeper(1024, 0.01)
	require.False(t, d.Insert(1))
	require.True(t, d.Insert(1))
	require.True(t, d.Insert(1))
}

func TestDoorkeeperHas(t *testing.T) {
	d := newDoorkeeper(1024, 0.01)
	require.False(t, d.Has(1))
	d.Insert(1)
	require.True(t, d.Has(1))
	require.False(t, d.Has(2))
}

func TestDoorkeeperHasDoesNotMutate(t *testing.T) {
	d := newDoorkeeper(1024, 0.01)
	d.Has(42)
	require.False(t, d.Insert(42))
}

func TestDoorkeeperReset(t *testing.T) {
	d := newDoorkeeper(1024, 0.01)
	for i := uint64(0); i < 100; i++ {
		d.Insert(i)
	}
	d.Reset()
	for i := uint64(0); i < 100; i++ {
		require.False(t, d.Has(i))
	}
}

func TestDoorkeeperTinyCapacity(t *testing.T) {
	d := newDoorkeeper(0, 0.01)
	require.True(t, d.probes >= 1)
	require.False(t, d.Insert(99))
	require.True(t, d.Has(99))
}

func TestDoorkeeperFalsePositiveRate(t *testing.T) {
	capacity := int64(10000)
	d := newDoorkeeper(capacity, 0.01)
	for i := uint64(0); i < uint64(capacity); i++ {
		d.Insert(i)
	}
	falses := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if d.Has(uint64(capacity) + uint64(i)) {
			falses++
		}
	}
	// Allow generous slack over the configured 1% rate.
	require.Less(t, float64(falses)/float64(probes), 0.05)
}
