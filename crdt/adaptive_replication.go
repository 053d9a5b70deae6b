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
package crdt

import (
	"sync"

	nonlockingmap "github.com/launix-de/NonLockingReadMap"

	"github.com/nerdsane/kvdst/simclock"
)

// replicationOverride is one entry in the overrides table: a key
// promoted to a non-default replication factor. NonLockingReadMap needs
// a KeyGetter/Sizable-satisfying element type, so this is the table's
// row type rather than a bare uint8.
type replicationOverride struct {
	key    string
	factor uint8
}

func (o replicationOverride) GetKey() string     { return o.key }
func (o replicationOverride) ComputeSize() uint { return uint(len(o.key)) + 1 }

// AdaptiveConfig tunes AdaptiveReplicationManager. It is a supplemented
// feature: the distilled spec's hot-key detector only reports hot keys,
// but the original implementation also used that signal to raise a
// key's replication factor. This module carries that forward as a hint
// only — see ReplicationDelta.ReplicationFactor.
type AdaptiveConfig struct {
	BaseReplicationFactor uint8
	HotReplicationFactor  uint8
	RecalcInterval        uint64 // milliseconds
}

// DefaultAdaptiveConfig mirrors the original's defaults.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{BaseReplicationFactor: 3, HotReplicationFactor: 5, RecalcInterval: 5000}
}

// AdaptiveReplicationManager tracks per-key replication-factor overrides
// for keys a hot-key detector has flagged. It holds no access-pattern
// state of its own; the engine's hot-key detector remains the single
// source of truth for "is this key hot".
//
// The overrides table is read on every single delta a shard emits
// (ReplicationFactorFor) but written only once per RecalcInterval
// (Recalculate) — exactly the read-often/write-rarely shape
// github.com/launix-de/NonLockingReadMap is built for, so the table
// is one instead of a mutex-guarded map: ReplicationFactorFor never
// blocks on Recalculate running concurrently.
type AdaptiveReplicationManager struct {
	mu           sync.Mutex
	cfg          AdaptiveConfig
	overrides    nonlockingmap.NonLockingReadMap[replicationOverride, string]
	lastRecalcMs uint64
	promotions   uint64
	demotions    uint64
}

// NewAdaptiveReplicationManager returns a manager with no overrides set.
func NewAdaptiveReplicationManager(cfg AdaptiveConfig) *AdaptiveReplicationManager {
	return &AdaptiveReplicationManager{cfg: cfg, overrides: nonlockingmap.New[replicationOverride, string]()}
}

// Recalculate promotes every key in hotKeys to HotReplicationFactor and
// demotes every previously-promoted key no longer in hotKeys back to
// BaseReplicationFactor. It is a no-op if called before RecalcInterval
// has elapsed since the last call, unless force is set.
func (m *AdaptiveReplicationManager) Recalculate(now simclock.Timestamp, hotKeys []string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && uint64(now) < m.lastRecalcMs+m.cfg.RecalcInterval {
		return
	}
	m.lastRecalcMs = uint64(now)

	hot := make(map[string]struct{}, len(hotKeys))
	for _, k := range hotKeys {
		hot[k] = struct{}{}
		if m.overrides.Get(k) == nil {
			m.promotions++
		}
		m.overrides.Set(&replicationOverride{key: k, factor: m.cfg.HotReplicationFactor})
	}
	for _, existing := range m.overrides.GetAll() {
		if _, stillHot := hot[existing.key]; !stillHot {
			m.overrides.Remove(existing.key)
			m.demotions++
		}
	}
}

// ReplicationFactorFor returns the replication factor a delta for key
// should carry: HotReplicationFactor if key is currently promoted,
// otherwise BaseReplicationFactor. Lock-free: it never contends with a
// concurrent Recalculate.
func (m *AdaptiveReplicationManager) ReplicationFactorFor(key string) uint8 {
	if o := m.overrides.Get(key); o != nil {
		return o.factor
	}
	return m.cfg.BaseReplicationFactor
}

// Stats returns the cumulative promotion/demotion counters.
func (m *AdaptiveReplicationManager) Stats() (promotions, demotions uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promotions, m.demotions
}
