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

package broker

import (
	"sync"
	"time"
)

// HealthState is the broker's view of its partition data backend.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthUnavailable HealthState = "unavailable"
)

// HealthConfig holds the thresholds between states. Zero fields take
// defaults.
type HealthConfig struct {
	Window      time.Duration
	LatencyWarn time.Duration
	LatencyCrit time.Duration
	ErrorWarn   float64
	ErrorCrit   float64
	MaxSamples  int
}

// HealthMonitor tracks recent partition reads and derives a HealthState
// from their average latency and error rate.
type HealthMonitor struct {
	cfg HealthConfig

	mu         sync.Mutex
	samples    []readSample
	state      HealthState
	stateSince time.Time
	avgLatency time.Duration
	errorRate  float64
}

type readSample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// HealthSnapshot is a point-in-time copy of the monitor's aggregates.
type HealthSnapshot struct {
	State      HealthState
	Since      time.Time
	AvgLatency time.Duration
	ErrorRate  float64
	Samples    int
}

func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = 250 * time.Millisecond
	}
	if cfg.LatencyCrit <= 0 {
		cfg.LatencyCrit = 2 * time.Second
	}
	if cfg.ErrorWarn <= 0 {
		cfg.ErrorWarn = 0.2
	}
	if cfg.ErrorCrit <= 0 {
		cfg.ErrorCrit = 0.6
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 512
	}
	m := &HealthMonitor{cfg: cfg}
	m.setStateLocked(time.Now(), HealthHealthy)
	return m
}

// RecordRead adds the outcome of one partition read.
func (m *HealthMonitor) RecordRead(latency time.Duration, err error) {
	if m == nil {
		return
	}
	storageReadSeconds.Observe(latency.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.samples = append(m.samples, readSample{at: now, latency: latency, failed: err != nil})
	if len(m.samples) > m.cfg.MaxSamples {
		m.samples = m.samples[len(m.samples)-m.cfg.MaxSamples:]
	}
	m.expireLocked(now)
	m.recomputeLocked(now)
}

func (m *HealthMonitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return HealthSnapshot{
		State:      m.state,
		Since:      m.stateSince,
		AvgLatency: m.avgLatency,
		ErrorRate:  m.errorRate,
		Samples:    len(m.samples),
	}
}

func (m *HealthMonitor) State() HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether Fetch can be expected to return data.
func (m *HealthMonitor) Ready() bool {
	return m.State() != HealthUnavailable
}

func (m *HealthMonitor) expireLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.Window)
	keep := 0
	for keep < len(m.samples) && !m.samples[keep].at.After(cutoff) {
		keep++
	}
	if keep > 0 {
		m.samples = append([]readSample(nil), m.samples[keep:]...)
	}
}

func (m *HealthMonitor) recomputeLocked(now time.Time) {
	if len(m.samples) == 0 {
		m.avgLatency = 0
		m.errorRate = 0
		m.setStateLocked(now, HealthHealthy)
		return
	}
	var total time.Duration
	failed := 0
	for _, s := range m.samples {
		total += s.latency
		if s.failed {
			failed++
		}
	}
	m.avgLatency = total / time.Duration(len(m.samples))
	m.errorRate = float64(failed) / float64(len(m.samples))

	next := HealthHealthy
	switch {
	case m.avgLatency >= m.cfg.LatencyCrit || m.errorRate >= m.cfg.ErrorCrit:
		next = HealthUnavailable
	case m.avgLatency >= m.cfg.LatencyWarn || m.errorRate >= m.cfg.ErrorWarn:
		next = HealthDegraded
	}
	m.setStateLocked(now, next)
}

func (m *HealthMonitor) setStateLocked(now time.Time, next HealthState) {
	if next == m.state {
		return
	}
	for _, s := range []HealthState{HealthHealthy, HealthDegraded, HealthUnavailable} {
		v := 0.0
		if s == next {
			v = 1
		}
		storageHealth.WithLabelValues(string(s)).Set(v)
	}
	m.state = next
	m.stateSince = now
}
