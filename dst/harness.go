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

// Package dst is a FoundationDB-style deterministic simulation harness:
// a seeded driver runs randomized commands against several independent
// kv.Engine replicas, occasionally dropping or partitioning the
// replication traffic between them, then checks that every replica
// converges to the same key-by-key state once sync resumes. Every
// decision — which op, which key, which replica, whether a message
// drops — is driven by one simclock.Seeded Rng, so a failing run is
// reproducible from its seed alone.
package dst

import (
	"fmt"
	"sort"

	"github.com/nerdsane/kvdst/crdt"
	"github.com/nerdsane/kvdst/kv"
	"github.com/nerdsane/kvdst/simclock"
)

// Config mirrors the original fault-injection presets: calm (no drops),
// moderate, and chaos.
type Config struct {
	Seed             uint64
	NumReplicas      int
	MessageDropProb  float64
	PartitionProb    float64
	MaxOperations    int
}

// Calm returns a drop-free configuration — pure convergence-under-
// concurrency testing, no fault injection.
func Calm(seed uint64) Config {
	return Config{Seed: seed, NumReplicas: 3, MaxOperations: 500}
}

// Moderate injects occasional drops and partitions.
func Moderate(seed uint64) Config {
	return Config{Seed: seed, NumReplicas: 5, MessageDropProb: 0.1, PartitionProb: 0.05, MaxOperations: 500}
}

// Chaos injects aggressive drops and partitions.
func Chaos(seed uint64) Config {
	return Config{Seed: seed, NumReplicas: 7, MessageDropProb: 0.3, PartitionProb: 0.15, MaxOperations: 500}
}

// Result summarizes one harness run, for test assertions and for
// reporting a failing seed.
type Result struct {
	Seed               uint64
	TotalOperations    uint64
	OpsPerReplica      map[int]uint64
	SyncsPerformed     uint64
	MessagesDropped    uint64
	InvariantViolations []string
	Converged          bool
}

// IsSuccess reports whether the run found no invariant violations and
// every replica converged.
func (r Result) IsSuccess() bool {
	return len(r.InvariantViolations) == 0 && r.Converged
}

// Summary renders a one-line human-readable result, matching the
// original's format so a failing seed is easy to paste into a bug report.
func (r Result) Summary() string {
	return fmt.Sprintf("seed %d: %d ops, %d syncs, %d drops, converged=%v, %d violations",
		r.Seed, r.TotalOperations, r.SyncsPerformed, r.MessagesDropped, r.Converged, len(r.InvariantViolations))
}

// replica pairs one Engine with its index in the harness. The partition
// group it belongs to is kept in Harness.partition: replicas in
// different partitions never see each other's deltas until the
// partition heals.
type replica struct {
	id     int
	engine *kv.Engine
}

// Harness drives cfg.NumReplicas independent kv.Engine instances,
// capturing every delta each one emits, and replaying it into the
// others' ApplyDelta subject to fault injection.
type Harness struct {
	cfg      Config
	rng      *simclock.Seeded
	clock    *simclock.Simulated
	replicas []replica
	// outbox[i] holds deltas replica i has produced but not yet
	// delivered to the others, so a partition can be healed later by
	// flushing whatever queued up while it was active.
	outbox    [][]crdt.ReplicationDelta
	partition map[int]int // replica id -> partition group id; 0 means unpartitioned
}

// NewHarness constructs a harness with cfg.NumReplicas fresh, empty
// engines, each on its own replica ID.
func NewHarness(cfg Config) *Harness {
	if cfg.NumReplicas <= 0 {
		cfg.NumReplicas = 3
	}
	clock := simclock.NewSimulated(0)
	h := &Harness{
		cfg:       cfg,
		rng:       simclock.NewSeeded(cfg.Seed),
		clock:     clock,
		outbox:    make([][]crdt.ReplicationDelta, cfg.NumReplicas),
		partition: map[int]int{},
	}
	for i := 0; i < cfg.NumReplicas; i++ {
		replicaID := fmt.Sprintf("replica-%d", i)
		engineCfg := kv.DefaultEngineConfig(replicaID)
		engineCfg.ShardCount = 4
		eng := kv.NewEngine(engineCfg, clock, h.rng)
		idx := i
		eng.AddDeltaSink(func(d crdt.ReplicationDelta) {
			h.outbox[idx] = append(h.outbox[idx], d)
		})
		h.replicas = append(h.replicas, replica{id: i, engine: eng})
	}
	return h
}

var opPool = []kv.Op{kv.OpSet, kv.OpDel, kv.OpIncrBy, kv.OpLPush, kv.OpHSet, kv.OpSAdd, kv.OpZAdd}

// Run executes cfg.MaxOperations randomized commands (or n, if smaller
// and positive), each against a randomly chosen replica and a key drawn
// from a small fixed pool (so convergence has to reconcile concurrent
// writes to the same keys, not just disjoint ones), syncing and
// checking convergence at the end.
func (h *Harness) Run(n int) Result {
	if n <= 0 || n > h.cfg.MaxOperations {
		n = h.cfg.MaxOperations
	}
	res := Result{Seed: h.cfg.Seed, OpsPerReplica: map[int]uint64{}}

	keys := []string{"k0", "k1", "k2", "k3", "k4"}

	for i := 0; i < n; i++ {
		h.clock.Advance(1_000_000) // 1ms per op, keeps Lamport/TTL math sane
		replicaIdx := h.rng.IntN(len(h.replicas))
		op := opPool[h.rng.IntN(len(opPool))]
		key := keys[h.rng.IntN(len(keys))]

		cmd := h.randomCommand(op, key)
		if _, err := h.replicas[replicaIdx].engine.Execute(cmd); err != nil {
			// a WrongTypeError from a prior op picking a different
			// collection type for this key is an expected outcome of
			// random op generation, not a harness failure.
			continue
		}
		res.TotalOperations++
		res.OpsPerReplica[replicaIdx]++

		if h.rng.Float64() < h.cfg.PartitionProb {
			h.togglePartition(replicaIdx)
		}
		h.deliverPending(&res)
	}

	h.healAllPartitions()
	h.syncAllReliably()
	res.SyncsPerformed++

	res.InvariantViolations = h.checkConvergence()
	res.Converged = len(res.InvariantViolations) == 0
	return res
}

func (h *Harness) randomCommand(op kv.Op, key string) kv.Command {
	switch op {
	case kv.OpSet:
		return kv.Command{Op: op, Key: key, Value: []byte(fmt.Sprintf("v%d", h.rng.IntN(1000)))}
	case kv.OpDel:
		return kv.Command{Op: op, Key: key}
	case kv.OpIncrBy:
		return kv.Command{Op: op, Key: key, IntArg: int64(h.rng.IntN(10) - 5)}
	case kv.OpLPush:
		return kv.Command{Op: op, Key: key, Values: [][]byte{[]byte("x")}}
	case kv.OpHSet:
		return kv.Command{Op: op, Key: key, Field: "f", Value: []byte("v")}
	case kv.OpSAdd:
		return kv.Command{Op: op, Key: key, Members: []string{fmt.Sprintf("m%d", h.rng.IntN(5))}}
	case kv.OpZAdd:
		return kv.Command{Op: op, Key: key, Member: fmt.Sprintf("m%d", h.rng.IntN(5)), Score: h.rng.Float64() * 100}
	default:
		return kv.Command{Op: kv.OpGet, Key: key}
	}
}

// togglePartition flips replica i between partitioned (group 1) and
// healed (group 0, same as everyone else).
func (h *Harness) togglePartition(i int) {
	if h.partition[i] != 0 {
		delete(h.partition, i)
	} else {
		h.partition[i] = 1
	}
}

func (h *Harness) healAllPartitions() {
	h.partition = map[int]int{}
}

// deliverPending fans every replica's queued deltas out to every other
// replica not currently in a different partition, dropping a fraction
// of messages per MessageDropProb. A delta that missed any replica stays
// in the outbox for a later delivery round.
func (h *Harness) deliverPending(res *Result) {
	for i := range h.replicas {
		pending := h.outbox[i]
		h.outbox[i] = nil
		var undelivered []crdt.ReplicationDelta
		for _, d := range pending {
			missed := false
			for j := range h.replicas {
				if i == j {
					continue
				}
				if h.partition[i] != h.partition[j] && (h.partition[i] != 0 || h.partition[j] != 0) {
					missed = true
					continue
				}
				if h.rng.Float64() < h.cfg.MessageDropProb {
					res.MessagesDropped++
					missed = true
					continue
				}
				_ = h.replicas[j].engine.ApplyDelta(d)
			}
			if missed {
				undelivered = append(undelivered, d)
			}
		}
		h.outbox[i] = append(undelivered, h.outbox[i]...)
	}
}

// syncAllReliably delivers every outstanding delta to every other
// replica with no drops and no partition check — the harness's
// sync_all(), guaranteeing that any remaining divergence found by
// checkConvergence is a genuine bug, not an artifact of fault injection
// still being active.
func (h *Harness) syncAllReliably() {
	for i := range h.replicas {
		pending := h.outbox[i]
		h.outbox[i] = nil
		for _, d := range pending {
			for j := range h.replicas {
				if i == j {
					continue
				}
				_ = h.replicas[j].engine.ApplyDelta(d)
			}
		}
	}
}

// checkConvergence compares every replica's flattened snapshot against
// replica 0's. The authoritative pass/fail call is
// crdt.ShardReplicaState.Equal (spec invariant 5: equal-by-clock, not
// just equal-by-value), so a regression like a Lamport clock that
// drifts on re-delivery of an already-applied delta is caught even
// though the two replicas' live values still look alike; diff then
// re-walks the same two snapshots to produce a human-readable violation
// per divergent key.
func (h *Harness) checkConvergence() []string {
	var violations []string
	baseFlat := flatten(h.replicas[0].engine.Snapshot())
	base := crdt.NewShardReplicaStateFromValues(baseFlat)
	for i := 1; i < len(h.replicas); i++ {
		otherFlat := flatten(h.replicas[i].engine.Snapshot())
		other := crdt.NewShardReplicaStateFromValues(otherFlat)
		if !base.Equal(other) {
			violations = append(violations, diff(baseFlat, otherFlat, 0, i)...)
		}
	}
	sort.Strings(violations)
	return violations
}

func flatten(shards []map[string]crdt.ReplicatedValue) map[string]crdt.ReplicatedValue {
	out := map[string]crdt.ReplicatedValue{}
	for _, shard := range shards {
		for k, v := range shard {
			out[k] = v
		}
	}
	return out
}

func diff(a, b map[string]crdt.ReplicatedValue, aID, bID int) []string {
	var out []string
	seen := map[string]bool{}
	for k, av := range a {
		seen[k] = true
		bv, ok := b[k]
		if !ok {
			out = append(out, fmt.Sprintf("key %q present on replica %d, absent on replica %d", k, aID, bID))
			continue
		}
		if !sameState(av, bv) {
			out = append(out, fmt.Sprintf("key %q diverges between replica %d and replica %d", k, aID, bID))
		}
	}
	for k := range b {
		if !seen[k] {
			out = append(out, fmt.Sprintf("key %q present on replica %d, absent on replica %d", k, bID, aID))
		}
	}
	return out
}

// sameState mirrors crdt.ShardReplicaState.Equal's per-key criterion
// exactly, so diff's messages line up with whatever tripped the
// authoritative Equal check in checkConvergence.
func sameState(a, b crdt.ReplicatedValue) bool {
	if a.Tombstone != b.Tombstone {
		return false
	}
	if !a.Clock.Equal(b.Clock) {
		return false
	}
	if a.Tombstone {
		return true
	}
	if a.Value.TypeName() != b.Value.TypeName() {
		return false
	}
	return a.Value.Le(b.Value) && b.Value.Le(a.Value)
}
