// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/novatechflow/kraftbroker/pkg/storage"
)

var metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

// byteRate measures throughput over a sliding window of one-second slots.
type byteRate struct {
	mu    sync.Mutex
	slots []int64
	stamp []int64
	now   func() time.Time
}

func newByteRate(window time.Duration) *byteRate {
	n := int(window / time.Second)
	if n < 1 {
		n = 60
	}
	return &byteRate{
		slots: make([]int64, n),
		stamp: make([]int64, n),
		now:   time.Now,
	}
}

func (r *byteRate) add(count int64) {
	if r == nil || count <= 0 {
		return
	}
	sec := r.now().Unix()
	i := int(sec % int64(len(r.slots)))
	r.mu.Lock()
	if r.stamp[i] != sec {
		r.stamp[i] = sec
		r.slots[i] = 0
	}
	r.slots[i] += count
	r.mu.Unlock()
}

// rate returns bytes per second averaged over the window.
func (r *byteRate) rate() float64 {
	if r == nil {
		return 0
	}
	sec := r.now().Unix()
	oldest := sec - int64(len(r.slots)) + 1
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for i, stamp := range r.stamp {
		if stamp >= oldest && stamp <= sec {
			total += r.slots[i]
		}
	}
	return float64(total) / float64(len(r.slots))
}

// meteredReader feeds every successful partition read into a byteRate.
type meteredReader struct {
	next storage.SegmentReader
	rate *byteRate
}

func (m *meteredReader) ReadPartition(ctx context.Context, topic string, partition int32) ([]byte, error) {
	data, err := m.next.ReadPartition(ctx, topic, partition)
	if err == nil {
		m.rate.add(int64(len(data)))
	}
	return data, err
}

func registerAppMetrics(reg prometheus.Registerer, a *app) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kraftbroker",
			Name:      "fetch_bytes_per_second",
			Help:      "Partition data served by Fetch, averaged over the last minute.",
		}, a.fetchRate.rate),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kraftbroker",
			Name:      "metadata_topics",
			Help:      "Topics registered in the loaded metadata log.",
		}, func() float64 { return float64(len(a.store.Topics())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kraftbroker",
			Name:      "metadata_batches",
			Help:      "Record batches in the loaded metadata log.",
		}, func() float64 { return float64(len(a.store.Index().Batches)) }),
	)
	if a.cache == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "kraftbroker",
			Name:      "partition_cache_hits_total",
			Help:      "Partition reads served from the cache.",
		}, func() float64 { return float64(a.cache.Hits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "kraftbroker",
			Name:      "partition_cache_misses_total",
			Help:      "Partition reads that went to the backend.",
		}, func() float64 { return float64(a.cache.Misses()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kraftbroker",
			Name:      "partition_cache_bytes",
			Help:      "Bytes held by the partition cache.",
		}, func() float64 { return float64(a.cache.Size()) }),
	)
}
