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

// Package prom exposes a cache's counters as a Prometheus collector.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tollgate-io/tollgate"
)

// Collector adapts *tollgate.Metrics to the prometheus.Collector interface.
// Counters are read fresh on every scrape; nothing is cached between
// scrapes.
type Collector struct {
	metrics *tollgate.Metrics

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	ratio        *prometheus.Desc
	keysAdded    *prometheus.Desc
	keysUpdated  *prometheus.Desc
	keysEvicted  *prometheus.Desc
	costAdded    *prometheus.Desc
	costEvicted  *prometheus.Desc
	setsDropped  *prometheus.Desc
	setsRejected *prometheus.Desc
	getsDropped  *prometheus.Desc
	getsKept     *prometheus.Desc
}

// NewCollector builds a collector for the given metrics. Register it with a
// prometheus.Registerer; the cache itself never touches the registry.
func NewCollector(m *tollgate.Metrics, namespace, subsystem string, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name),
			help, nil, constLabels,
		)
	}
	return &Collector{
		metrics:      m,
		hits:         desc("hits_total", "Get calls that found a value."),
		misses:       desc("misses_total", "Get calls that found nothing."),
		ratio:        desc("hit_ratio", "Hits over all accesses."),
		keysAdded:    desc("keys_added_total", "Admitted new entries."),
		keysUpdated:  desc("keys_updated_total", "In-place value updates."),
		keysEvicted:  desc("keys_evicted_total", "Entries evicted or expired."),
		costAdded:    desc("cost_added_total", "Cost admitted into the cache."),
		costEvicted:  desc("cost_evicted_total", "Cost removed by eviction."),
		setsDropped:  desc("sets_dropped_total", "Sets lost to backpressure."),
		setsRejected: desc("sets_rejected_total", "Sets refused by admission."),
		getsDropped:  desc("gets_dropped_total", "Access hints lost to backpressure."),
		getsKept:     desc("gets_kept_total", "Access hints recorded."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.ratio
	ch <- c.keysAdded
	ch <- c.keysUpdated
	ch <- c.keysEvicted
	ch <- c.costAdded
	ch <- c.costEvicted
	ch <- c.setsDropped
	ch <- c.setsRejected
	ch <- c.getsDropped
	ch <- c.getsKept
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.hits, c.metrics.Hits())
	counter(c.misses, c.metrics.Misses())
	ch <- prometheus.MustNewConstMetric(c.ratio, prometheus.GaugeValue, c.metrics.Ratio())
	counter(c.keysAdded, c.metrics.KeysAdded())
	counter(c.keysUpdated, c.metrics.KeysUpdated())
	counter(c.keysEvicted, c.metrics.KeysEvicted())
	counter(c.costAdded, c.metrics.CostAdded())
	counter(c.costEvicted, c.metrics.CostEvicted())
	counter(c.setsDropped, c.metrics.SetsDropped())
	counter(c.setsRejected, c.metrics.SetsRejected())
	counter(c.getsDropped, c.metrics.GetsDropped())
	counter(c.getsKept, c.metrics.GetsKept())
}
