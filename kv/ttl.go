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
	"sync"
	"time"

	"github.com/dc0d/onexit"
)

// TTLManagerConfig tunes the periodic sweep.
type TTLManagerConfig struct {
	Interval               time.Duration // nominal 100ms per the sweep design
	MaxKeysPerShardPerTick int
}

// DefaultTTLManagerConfig returns the nominal 100ms tick, 64 keys per
// shard per tick.
func DefaultTTLManagerConfig() TTLManagerConfig {
	return TTLManagerConfig{Interval: 100 * time.Millisecond, MaxKeysPerShardPerTick: 64}
}

// TTLManager periodically sweeps Engine for expired keys, reclaiming
// memory for keys nobody has read since they expired. Lazy expiry on Get
// stays authoritative regardless of how far behind this falls. Modeled
// on persist.Pipeline's background-loop lifecycle (stopCh/stopped/
// onceStop, onexit registration).
type TTLManager struct {
	cfg    TTLManagerConfig
	engine *Engine

	stopCh   chan struct{}
	stopped  chan struct{}
	onceStop sync.Once
}

// NewTTLManager starts the sweep loop immediately and registers its
// shutdown with onexit.
func NewTTLManager(engine *Engine, cfg TTLManagerConfig) *TTLManager {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	m := &TTLManager{
		cfg:     cfg,
		engine:  engine,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	onexit.Register(func() { m.Shutdown() })
	go m.loop()
	return m
}

func (m *TTLManager) loop() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.engine.SweepExpired(m.cfg.MaxKeysPerShardPerTick)
		}
	}
}

// Shutdown stops the sweep loop. Safe to call multiple times.
func (m *TTLManager) Shutdown() {
	m.onceStop.Do(func() {
		close(m.stopCh)
	})
	<-m.stopped
}
