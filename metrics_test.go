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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsAddGet(t *testing.T) {
	m := newMetrics()
	m.add(hit, 1, 1)
	m.add(hit, 2, 2)
	m.add(hit, 3, 3)
	require.Equal(t, uint64(6), m.Hits())

	m = nil
	m.add(hit, 1, 1)
	require.Equal(t, uint64(0), m.Hits())
}

func TestMetricsStripes(t *testing.T) {
	m := newMetrics()
	// Hashes landing on different stripes still sum together.
	for hash := uint64(0); hash < 1000; hash++ {
		m.add(miss, hash, 1)
	}
	require.Equal(t, uint64(1000), m.Misses())
}

func TestMetricsRatio(t *testing.T) {
	m := newMetrics()
	require.Equal(t, 0.0, m.Ratio())
	m.add(hit, 1, 1)
	m.add(hit, 2, 1)
	m.add(miss, 1, 1)
	m.add(miss, 2, 1)
	require.Equal(t, 0.5, m.Ratio())

	m = nil
	require.Equal(t, 0.0, m.Ratio())
}

func TestMetricsString(t *testing.T) {
	m := newMetrics()
	m.add(hit, 1, 1)
	m.add(miss, 1, 1)
	m.add(keyAdd, 1, 1)
	m.add(keyUpdate, 1, 1)
	m.add(keyEvict, 1, 1)
	m.add(costAdd, 1, 1)
	m.add(costEvict, 1, 1)
	m.add(dropSets, 1, 1)
	m.add(rejectSets, 1, 1)
	m.add(dropGets, 1, 1)
	m.add(keepGets, 1, 1)
	str := m.String()
	require.Equal(t, 26, len(strings.Split(str, " ")))
	require.Contains(t, str, "hit-ratio: 0.50")

	m = nil
	require.Equal(t, "", m.String())
	require.Equal(t, "unidentified", stringFor(doNotUse))
}

func TestMetricsClear(t *testing.T) {
	m := newMetrics()
	m.add(hit, 1, 1)
	m.Clear()
	require.Equal(t, uint64(0), m.Hits())

	m = nil
	m.Clear()
}

func TestMetricsAccessors(t *testing.T) {
	m := newMetrics()
	m.add(keyAdd, 1, 2)
	m.add(keyUpdate, 1, 3)
	m.add(keyEvict, 1, 4)
	m.add(costAdd, 1, 5)
	m.add(costEvict, 1, 6)
	m.add(dropSets, 1, 7)
	m.add(rejectSets, 1, 8)
	m.add(dropGets, 1, 9)
	m.add(keepGets, 1, 10)
	require.Equal(t, uint64(2), m.KeysAdded())
	require.Equal(t, uint64(3), m.KeysUpdated())
	require.Equal(t, uint64(4), m.KeysEvicted())
	require.Equal(t, uint64(5), m.CostAdded())
	require.Equal(t, uint64(6), m.CostEvicted())
	require.Equal(t, uint64(7), m.SetsDropped())
	require.Equal(t, uint64(8), m.SetsRejected())
	require.Equal(t, uint64(9), m.GetsDropped())
	require.Equal(t, uint64(10), m.GetsKept())
}
