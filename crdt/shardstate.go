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

import "sync"

// ShardReplicaState is the per-shard replication state: a map of key to
// ReplicatedValue, plus a per-source-replica vector clock advanced on
// every apply. It is the replication-side counterpart of a storage
// shard; one instance exists per engine shard.
type ShardReplicaState struct {
	mu            sync.Mutex
	localReplicaID string
	registerMode  bool // true: every pair of live values resolves by LWW, with no lattice join
	values        map[string]ReplicatedValue
	vectorClock   map[string]uint64 // highest Counter seen per source replica
}

// NewShardReplicaState returns an empty replication state for one shard.
// registerMode selects how Apply merges two live values for a key: true
// resolves every pair by last-writer-wins, whatever their types; false
// joins values of the same type and returns *TypeMismatchError when the
// types differ.
func NewShardReplicaState(localReplicaID string, registerMode bool) *ShardReplicaState {
	return &ShardReplicaState{
		localReplicaID: localReplicaID,
		registerMode:   registerMode,
		values:         map[string]ReplicatedValue{},
		vectorClock:    map[string]uint64{},
	}
}

// Apply merges delta into the state for its key, atomically with respect
// to other Apply calls, and advances the shard's per-source vector clock.
// Apply is idempotent: calling it twice with the same delta is
// equivalent to calling it once.
func (s *ShardReplicaState) Apply(delta ReplicationDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.values[delta.Key]
	var merged ReplicatedValue
	if !ok {
		merged = delta.NewValue
	} else {
		m, err := existing.Merge(delta.NewValue, s.localReplicaID, s.registerMode)
		if err != nil {
			return err
		}
		merged = m
	}
	s.values[delta.Key] = merged

	if delta.Causal.Counter > s.vectorClock[delta.SourceReplicaID] {
		s.vectorClock[delta.SourceReplicaID] = delta.Causal.Counter
	}
	return nil
}

// Get returns the current ReplicatedValue for key, and whether it exists.
func (s *ShardReplicaState) Get(key string) (ReplicatedValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns a shallow copy of every key's current ReplicatedValue,
// for use by the checkpoint writer.
func (s *ShardReplicaState) Snapshot() map[string]ReplicatedValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ReplicatedValue, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// VectorClock returns a copy of the highest Counter observed per source
// replica.
func (s *ShardReplicaState) VectorClock() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.vectorClock))
	for k, v := range s.vectorClock {
		out[k] = v
	}
	return out
}

// NewShardReplicaStateFromValues builds a replica state directly from an
// already-flattened key->ReplicatedValue map, for callers (the DST
// harness) that need an Equal-comparable snapshot without going through
// individual Apply calls.
func NewShardReplicaStateFromValues(values map[string]ReplicatedValue) *ShardReplicaState {
	cp := make(map[string]ReplicatedValue, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &ShardReplicaState{values: cp, vectorClock: map[string]uint64{}}
}

// Equal reports whether two ShardReplicaState instances hold the same
// set of keys mapped to equal-by-clock ReplicatedValues — used by the
// DST harness's convergence check (spec invariant 5).
func (s *ShardReplicaState) Equal(other *ShardReplicaState) bool {
	a := s.Snapshot()
	b := other.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av.Tombstone != bv.Tombstone || !av.Clock.Equal(bv.Clock) {
			return false
		}
		if !av.Tombstone {
			if av.Value.TypeName() != bv.Value.TypeName() {
				return false
			}
			if !av.Value.Le(bv.Value) || !bv.Value.Le(av.Value) {
				return false
			}
		}
	}
	return true
}
