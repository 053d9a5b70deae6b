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
package objectstore

import (
	"context"
	"sync"

	"github.com/nerdsane/kvdst/simclock"
)

// FaultConfig configures the Simulated store's deterministic fault
// injection. Every probability is checked against rng.Float64(), so a
// fixed seed reproduces a fixed fault sequence.
type FaultConfig struct {
	// DropProbability: Put silently discards the write (the caller sees
	// success, but the object never lands).
	DropProbability float64
	// PartialWriteProbability: Put truncates the payload before storing,
	// simulating a torn write.
	PartialWriteProbability float64
	// PermissionDeniedProbability: any call fails with PermissionDeniedError.
	PermissionDeniedProbability float64
	// DelayOps delays a Put's visibility by this many subsequent store
	// operations, modeling network latency deterministically (operation
	// count stands in for wall-clock time so the harness stays
	// reproducible without real sleeps).
	DelayOps int
	// ReorderProbability: when a Put is delayed and at least one write is
	// already pending, it is instead scheduled one operation after the
	// earliest pending write.
	ReorderProbability float64
}

type pendingWrite struct {
	key     string
	data    []byte
	readyAt int
}

// Simulated wraps a base Store (typically Memory) with fault injection
// driven by a seeded simclock.Rng, per the Determinism design note:
// drop, delay, reorder, partial-write and permission-denied are all
// reproducible given the same seed and the same call sequence.
type Simulated struct {
	base Store
	rng  simclock.Rng
	cfg  FaultConfig

	mu      sync.Mutex
	opCount int
	pending []pendingWrite
}

// NewSimulated wraps base with fault injection configured by cfg.
func NewSimulated(base Store, rng simclock.Rng, cfg FaultConfig) *Simulated {
	return &Simulated{base: base, rng: rng, cfg: cfg}
}

func (s *Simulated) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return s.rng.Float64() < p
}

func (s *Simulated) maybeDeny(key string) error {
	if s.chance(s.cfg.PermissionDeniedProbability) {
		return &PermissionDeniedError{Key: key}
	}
	return nil
}

// drainPending releases any delayed writes whose readyAt has arrived
// into the base store; called on every op so delayed writes eventually
// become visible without a background goroutine.
func (s *Simulated) drainPending() {
	var keep []pendingWrite
	for _, pw := range s.pending {
		if s.opCount >= pw.readyAt {
			_ = s.base.Put(context.Background(), pw.key, pw.data)
		} else {
			keep = append(keep, pw)
		}
	}
	s.pending = keep
}

func (s *Simulated) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opCount++
	s.drainPending()

	if err := s.maybeDeny(key); err != nil {
		return err
	}
	if s.chance(s.cfg.DropProbability) {
		return nil // silently lost
	}

	payload := data
	if s.chance(s.cfg.PartialWriteProbability) && len(data) > 0 {
		cut := 1 + s.rng.IntN(len(data))
		payload = data[:cut]
	}

	if s.cfg.DelayOps > 0 {
		readyAt := s.opCount + s.cfg.DelayOps
		if len(s.pending) > 0 && s.chance(s.cfg.ReorderProbability) {
			// jump behind the currently-earliest pending write.
			readyAt = s.pending[0].readyAt + 1
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.pending = append(s.pending, pendingWrite{key: key, data: cp, readyAt: readyAt})
		return nil
	}
	return s.base.Put(ctx, key, payload)
}

func (s *Simulated) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.opCount++
	s.drainPending()
	denyErr := s.maybeDeny(key)
	s.mu.Unlock()
	if denyErr != nil {
		return nil, denyErr
	}
	return s.base.Get(ctx, key)
}

func (s *Simulated) Head(ctx context.Context, key string) (Meta, error) {
	s.mu.Lock()
	s.opCount++
	s.drainPending()
	denyErr := s.maybeDeny(key)
	s.mu.Unlock()
	if denyErr != nil {
		return Meta{}, denyErr
	}
	return s.base.Head(ctx, key)
}

func (s *Simulated) List(ctx context.Context, prefix string, token string) (ListResult, error) {
	s.mu.Lock()
	s.opCount++
	s.drainPending()
	denyErr := s.maybeDeny(prefix)
	s.mu.Unlock()
	if denyErr != nil {
		return ListResult{}, denyErr
	}
	return s.base.List(ctx, prefix, token)
}

func (s *Simulated) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.opCount++
	s.drainPending()
	denyErr := s.maybeDeny(key)
	s.mu.Unlock()
	if denyErr != nil {
		return denyErr
	}
	return s.base.Delete(ctx, key)
}

func (s *Simulated) Rename(ctx context.Context, from, to string) error {
	s.mu.Lock()
	s.opCount++
	s.drainPending()
	denyErr := s.maybeDeny(from)
	s.mu.Unlock()
	if denyErr != nil {
		return denyErr
	}
	return s.base.Rename(ctx, from, to)
}

// PendingCount reports how many writes are still delayed, for test
// assertions that want to force-drain before checking final state.
func (s *Simulated) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush forces every delayed write to land immediately, regardless of
// readyAt, so a test can assert final convergent state.
func (s *Simulated) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pw := range s.pending {
		_ = s.base.Put(context.Background(), pw.key, pw.data)
	}
	s.pending = nil
}

