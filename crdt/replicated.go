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

import "github.com/nerdsane/kvdst/simclock"

// ReplicatedValue is the unit of state a ShardReplicaState holds for one
// key: either a live CRDT value or a tombstone, stamped with the clock of
// the mutation that produced it and an optional absolute expiry.
type ReplicatedValue struct {
	Value     Value
	Tombstone bool
	Clock     LamportClock
	TTL       *simclock.Timestamp
}

// NewTombstone returns a deletion marker stamped with clock.
func NewTombstone(clock LamportClock) ReplicatedValue {
	return ReplicatedValue{Tombstone: true, Clock: clock}
}

// NewReplicatedValue wraps value under clock with no expiry.
func NewReplicatedValue(value Value, clock LamportClock) ReplicatedValue {
	return ReplicatedValue{Value: value, Clock: clock}
}

// WithTTL attaches an absolute expiry to a copy of rv.
func (rv ReplicatedValue) WithTTL(at simclock.Timestamp) ReplicatedValue {
	rv.TTL = &at
	return rv
}

// Expired reports whether rv's TTL, if any, has passed as of now.
func (rv ReplicatedValue) Expired(now simclock.Timestamp) bool {
	return rv.TTL != nil && now >= *rv.TTL
}

// Merge implements the replication merge rules from the design:
//
//  1. Tombstone vs a live value: the tombstone absorbs the value only if
//     its clock strictly exceeds the value's clock; otherwise the value
//     survives (with the merged clock).
//  2. Two tombstones: merge to a tombstone carrying the later clock.
//  3. registerMode: the shard holds plain (non-CRDT) register values —
//     Redis SET semantics. Two live values always resolve by
//     last-writer-wins-by-clock, whether or not their concrete types
//     match (a Hash overwritten by a later Bytes SET is exactly as valid
//     as two SETs of different strings).
//  4. !registerMode: the shard holds CRDT values. Two live values of the
//     same concrete type resolve by lattice Join; differing concrete
//     types are a CrdtTypeMismatch, since there is no lattice spanning
//     two different CRDT variants.
//
// Merge is idempotent and commutative in every branch: apply(d) then
// apply(d) again converges to the same state as apply(d) once, and the
// branch taken depends only on (rv, other, registerMode), never on
// evaluation order.
func (rv ReplicatedValue) Merge(other ReplicatedValue, localReplicaID string, registerMode bool) (ReplicatedValue, error) {
	switch {
	case rv.Tombstone && other.Tombstone:
		return NewTombstone(rv.Clock.Merge(other.Clock, localReplicaID)), nil

	case rv.Tombstone != other.Tombstone:
		tomb, live := rv, other
		if other.Tombstone {
			tomb, live = other, rv
		}
		mergedClock := tomb.Clock.Merge(live.Clock, localReplicaID)
		if !live.Clock.Less(tomb.Clock) {
			// the value postdates or ties the deletion: it survives.
			out := live
			out.Clock = mergedClock
			return out, nil
		}
		// the tombstone strictly postdates the value: it wins.
		return ReplicatedValue{Tombstone: true, Clock: mergedClock}, nil

	case registerMode:
		winner := rv
		if rv.Clock.Less(other.Clock) {
			winner = other
		}
		winner.Clock = rv.Clock.Merge(other.Clock, localReplicaID)
		return winner, nil

	case rv.Value.TypeName() != other.Value.TypeName():
		return ReplicatedValue{}, &TypeMismatchError{SelfType: rv.Value.TypeName(), OtherType: other.Value.TypeName()}

	default:
		joined := rv.Value.Join(other.Value)
		out := ReplicatedValue{
			Value: joined,
			Clock: rv.Clock.Merge(other.Clock, localReplicaID),
			TTL:   rv.TTL,
		}
		if rv.Clock.Less(other.Clock) {
			out.TTL = other.TTL
		}
		return out, nil
	}
}
