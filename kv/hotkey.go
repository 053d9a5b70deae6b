/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package kv

import (
	"sort"
	"sync"
)

// AccessMetrics is the per-key record the hot-key detector maintains:
// first/last access time and read/write counts. Every tracked entry has
// at least one access recorded (Reads+Writes > 0).
type AccessMetrics struct {
	FirstAccessMs uint64
	LastAccessMs  uint64
	Reads         uint64
	Writes        uint64
}

func newAccessMetrics(nowMs uint64, isWrite bool) AccessMetrics {
	m := AccessMetrics{FirstAccessMs: nowMs, LastAccessMs: nowMs}
	if isWrite {
		m.Writes = 1
	} else {
		m.Reads = 1
	}
	return m
}

func (m *AccessMetrics) record(nowMs uint64, isWrite bool) {
	if isWrite {
		m.Writes++
	} else {
		m.Reads++
	}
	m.LastAccessMs = nowMs
}

// Rate returns accesses per second over the key's observed lifetime.
func (m AccessMetrics) Rate(nowMs uint64) float64 {
	total := m.Reads + m.Writes
	durationMs := nowMs - m.FirstAccessMs
	if nowMs < m.FirstAccessMs {
		durationMs = 0
	}
	if durationMs < 1 {
		durationMs = 1
	}
	return float64(total) * 1000 / float64(durationMs)
}

// HotKeyConfig tunes HotKeyDetector.
type HotKeyConfig struct {
	WindowMs          uint64
	HotThreshold      float64
	CleanupIntervalMs uint64
	MaxTrackedKeys    int
}

// DefaultHotKeyConfig mirrors the original implementation's defaults.
func DefaultHotKeyConfig() HotKeyConfig {
	return HotKeyConfig{WindowMs: 10_000, HotThreshold: 100, CleanupIntervalMs: 5_000, MaxTrackedKeys: 10_000}
}

// HotKeyDetector is a sliding-window access-rate estimator, one per
// shard (so its map is never contended across shards). New keys beyond
// MaxTrackedKeys are ignored rather than LRU-evicted, by design: LRU
// eviction would need a second hot-path map lookup (and its own
// bookkeeping) purely to protect a bound that's already rare to hit in
// practice.
type HotKeyDetector struct {
	mu            sync.Mutex
	cfg           HotKeyConfig
	metrics       map[string]*AccessMetrics
	lastCleanupMs uint64
}

// NewHotKeyDetector returns an empty detector.
func NewHotKeyDetector(cfg HotKeyConfig) *HotKeyDetector {
	return &HotKeyDetector{cfg: cfg, metrics: map[string]*AccessMetrics{}}
}

// RecordAccess registers one read or write to key at nowMs.
func (d *HotKeyDetector) RecordAccess(key string, isWrite bool, nowMs uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if nowMs-d.lastCleanupMs >= d.cfg.CleanupIntervalMs && nowMs >= d.lastCleanupMs {
		d.cleanupLocked(nowMs)
		d.lastCleanupMs = nowMs
	}

	if m, ok := d.metrics[key]; ok {
		m.record(nowMs, isWrite)
		return
	}
	if len(d.metrics) >= d.cfg.MaxTrackedKeys {
		return
	}
	m := newAccessMetrics(nowMs, isWrite)
	d.metrics[key] = &m
}

// IsHot reports whether key's current access rate meets HotThreshold.
func (d *HotKeyDetector) IsHot(key string, nowMs uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.metrics[key]
	if !ok {
		return false
	}
	return m.Rate(nowMs) >= d.cfg.HotThreshold
}

// keyRate pairs a key with its computed access rate, for TopKeys output.
type keyRate struct {
	Key  string
	Rate float64
}

// TopKeys returns the n hottest keys by access rate, descending.
func (d *HotKeyDetector) TopKeys(n int, nowMs uint64) []keyRate {
	d.mu.Lock()
	defer d.mu.Unlock()
	rates := make([]keyRate, 0, len(d.metrics))
	for k, m := range d.metrics {
		rates = append(rates, keyRate{Key: k, Rate: m.Rate(nowMs)})
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].Rate != rates[j].Rate {
			return rates[i].Rate > rates[j].Rate
		}
		return rates[i].Key < rates[j].Key
	})
	if n < len(rates) {
		rates = rates[:n]
	}
	return rates
}

// HotKeysAbove returns every tracked key whose current rate meets
// threshold, unordered.
func (d *HotKeyDetector) HotKeysAbove(threshold float64, nowMs uint64) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for k, m := range d.metrics {
		if m.Rate(nowMs) >= threshold {
			out = append(out, k)
		}
	}
	return out
}

// TrackedKeyCount returns the number of keys currently tracked — never
// more than MaxTrackedKeys (invariant 11).
func (d *HotKeyDetector) TrackedKeyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.metrics)
}

// cleanupLocked removes entries whose last access falls outside the
// sliding window. Caller must hold d.mu.
func (d *HotKeyDetector) cleanupLocked(nowMs uint64) {
	windowStart := uint64(0)
	if nowMs > d.cfg.WindowMs {
		windowStart = nowMs - d.cfg.WindowMs
	}
	for k, m := range d.metrics {
		if m.LastAccessMs < windowStart {
			delete(d.metrics, k)
		}
	}
}
