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

// Package crdt implements the lattice value types, their replicated
// wrapper, and the per-shard replication state described in the
// replication layer: G-counter, PN-counter, OR-set, LWW register, a
// Lamport clock for causal ordering, and the merge rules that tie them
// together (ReplicatedValue, ReplicationDelta, ShardReplicaState).
package crdt

import "strings"

// LamportClock is a per-replica logical clock: a strictly-increasing
// counter tagged with the replica that advanced it. Ties between clocks
// with the same counter are broken by comparing ReplicaID lexicographically.
type LamportClock struct {
	Counter   uint64
	ReplicaID string
}

// Tick advances the clock for a local mutation and returns the new value.
func (c LamportClock) Tick() LamportClock {
	return LamportClock{Counter: c.Counter + 1, ReplicaID: c.ReplicaID}
}

// Merge returns max(c, other): the clock advances to whichever of the
// two sorts later under Less, with no extra tick. This must be a pure
// function of (c, other) — not of which replica happens to be applying
// the merge — so that two replicas merging the same pair of clocks land
// on the identical result; localReplicaID is accepted for call-site
// symmetry with ReplicatedValue.Merge but does not affect the outcome.
// Ticking here would make apply(d) then apply(d) again advance the
// counter a second time, violating delta idempotency.
func (c LamportClock) Merge(other LamportClock, localReplicaID string) LamportClock {
	return Max(c, other)
}

// Less reports whether c happened-before other: smaller counter first,
// then replica id as a deterministic tie-break.
func (c LamportClock) Less(other LamportClock) bool {
	if c.Counter != other.Counter {
		return c.Counter < other.Counter
	}
	return strings.Compare(c.ReplicaID, other.ReplicaID) < 0
}

// Equal reports whether c and other are the identical clock value.
func (c LamportClock) Equal(other LamportClock) bool {
	return c.Counter == other.Counter && c.ReplicaID == other.ReplicaID
}

// Max returns whichever of c, other sorts later under Less.
func Max(c, other LamportClock) LamportClock {
	if c.Less(other) {
		return other
	}
	return c
}
