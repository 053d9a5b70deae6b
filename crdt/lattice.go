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

import "sort"

// Value is the tagged-sum interface every CRDT variant implements. Join
// must be commutative, associative and idempotent for any pair of values
// of the same concrete type (spec invariant 4).
type Value interface {
	// TypeName identifies the concrete variant for type-mismatch errors.
	TypeName() string
	// Zero returns the bottom element of this variant's lattice.
	Zero() Value
	// Join returns the least upper bound of v and other. other must be
	// the same concrete type; callers are responsible for checking
	// TypeName equality before calling Join (see ReplicatedValue.Merge).
	Join(other Value) Value
	// Le reports whether v is less-than-or-equal-to other in the
	// partial order (v merged with other yields other).
	Le(other Value) bool
	// Clone returns a deep copy so callers can mutate the result of Join
	// without aliasing shared maps.
	Clone() Value
}

// GCounter is a grow-only counter: one monotonic uint64 per replica,
// value = sum of all replicas' counters.
type GCounter struct {
	Counts map[string]uint64
}

// NewGCounter returns an empty G-counter.
func NewGCounter() *GCounter {
	return &GCounter{Counts: map[string]uint64{}}
}

func (g *GCounter) TypeName() string { return "GCounter" }

func (g *GCounter) Zero() Value { return NewGCounter() }

func (g *GCounter) Clone() Value {
	out := NewGCounter()
	for k, v := range g.Counts {
		out.Counts[k] = v
	}
	return out
}

// Increment bumps the given replica's local counter by delta and returns
// the new value for convenience.
func (g *GCounter) Increment(replicaID string, delta uint64) uint64 {
	g.Counts[replicaID] += delta
	return g.Counts[replicaID]
}

// Total returns the sum of all replicas' counters: the counter's value.
func (g *GCounter) Total() uint64 {
	var sum uint64
	for _, v := range g.Counts {
		sum += v
	}
	return sum
}

func (g *GCounter) Join(otherV Value) Value {
	other := otherV.(*GCounter)
	out := g.Clone().(*GCounter)
	for k, v := range other.Counts {
		if v > out.Counts[k] {
			out.Counts[k] = v
		}
	}
	return out
}

func (g *GCounter) Le(otherV Value) bool {
	other := otherV.(*GCounter)
	for k, v := range g.Counts {
		if v > other.Counts[k] {
			return false
		}
	}
	return true
}

// PNCounter supports increment and decrement via two G-counters.
type PNCounter struct {
	P *GCounter
	N *GCounter
}

// NewPNCounter returns a PN-counter with value 0.
func NewPNCounter() *PNCounter {
	return &PNCounter{P: NewGCounter(), N: NewGCounter()}
}

func (c *PNCounter) TypeName() string { return "PNCounter" }

func (c *PNCounter) Zero() Value { return NewPNCounter() }

func (c *PNCounter) Clone() Value {
	return &PNCounter{P: c.P.Clone().(*GCounter), N: c.N.Clone().(*GCounter)}
}

// Increment bumps the positive counter; delta must be non-negative.
func (c *PNCounter) Increment(replicaID string, delta uint64) {
	c.P.Increment(replicaID, delta)
}

// Decrement bumps the negative counter; delta must be non-negative.
func (c *PNCounter) Decrement(replicaID string, delta uint64) {
	c.N.Increment(replicaID, delta)
}

// Value returns P.Total() - N.Total() as a signed integer.
func (c *PNCounter) Value() int64 {
	return int64(c.P.Total()) - int64(c.N.Total())
}

func (c *PNCounter) Join(otherV Value) Value {
	other := otherV.(*PNCounter)
	return &PNCounter{
		P: c.P.Join(other.P).(*GCounter),
		N: c.N.Join(other.N).(*GCounter),
	}
}

func (c *PNCounter) Le(otherV Value) bool {
	other := otherV.(*PNCounter)
	return c.P.Le(other.P) && c.N.Le(other.N)
}

// addTag uniquely identifies one add operation for OR-Set semantics.
type addTag struct {
	ReplicaID string
	Counter   uint64
}

// ORSet is an observed-remove set: each element maps to the set of add
// tags that introduced it; an element is present iff it has at least one
// add tag not present in the tombstone set.
type ORSet struct {
	Adds       map[string]map[addTag]struct{}
	Tombstones map[string]map[addTag]struct{}
}

// NewORSet returns an empty OR-set.
func NewORSet() *ORSet {
	return &ORSet{Adds: map[string]map[addTag]struct{}{}, Tombstones: map[string]map[addTag]struct{}{}}
}

func (s *ORSet) TypeName() string { return "ORSet" }

func (s *ORSet) Zero() Value { return NewORSet() }

func (s *ORSet) Clone() Value {
	out := NewORSet()
	for elem, tags := range s.Adds {
		cp := make(map[addTag]struct{}, len(tags))
		for t := range tags {
			cp[t] = struct{}{}
		}
		out.Adds[elem] = cp
	}
	for elem, tags := range s.Tombstones {
		cp := make(map[addTag]struct{}, len(tags))
		for t := range tags {
			cp[t] = struct{}{}
		}
		out.Tombstones[elem] = cp
	}
	return out
}

// Add introduces elem into the set, tagged with a fresh (replicaID, counter).
func (s *ORSet) Add(elem string, replicaID string, counter uint64) {
	if s.Adds[elem] == nil {
		s.Adds[elem] = map[addTag]struct{}{}
	}
	s.Adds[elem][addTag{ReplicaID: replicaID, Counter: counter}] = struct{}{}
}

// Remove tombstones every add tag currently observed for elem.
func (s *ORSet) Remove(elem string) {
	tags, ok := s.Adds[elem]
	if !ok {
		return
	}
	if s.Tombstones[elem] == nil {
		s.Tombstones[elem] = map[addTag]struct{}{}
	}
	for t := range tags {
		s.Tombstones[elem][t] = struct{}{}
	}
}

// Contains reports whether elem has a live (untombstoned) add tag.
func (s *ORSet) Contains(elem string) bool {
	for t := range s.Adds[elem] {
		if _, removed := s.Tombstones[elem][t]; !removed {
			return true
		}
	}
	return false
}

// Members returns the sorted list of elements currently present.
func (s *ORSet) Members() []string {
	out := make([]string, 0, len(s.Adds))
	for elem := range s.Adds {
		if s.Contains(elem) {
			out = append(out, elem)
		}
	}
	sort.Strings(out)
	return out
}

func unionTagSets(a, b map[addTag]struct{}) map[addTag]struct{} {
	out := make(map[addTag]struct{}, len(a)+len(b))
	for t := range a {
		out[t] = struct{}{}
	}
	for t := range b {
		out[t] = struct{}{}
	}
	return out
}

func (s *ORSet) Join(otherV Value) Value {
	other := otherV.(*ORSet)
	out := NewORSet()
	for elem, tags := range s.Adds {
		out.Adds[elem] = unionTagSets(tags, other.Adds[elem])
	}
	for elem, tags := range other.Adds {
		if _, ok := out.Adds[elem]; !ok {
			out.Adds[elem] = unionTagSets(tags, nil)
		}
	}
	for elem, tags := range s.Tombstones {
		out.Tombstones[elem] = unionTagSets(tags, other.Tombstones[elem])
	}
	for elem, tags := range other.Tombstones {
		if _, ok := out.Tombstones[elem]; !ok {
			out.Tombstones[elem] = unionTagSets(tags, nil)
		}
	}
	return out
}

func (s *ORSet) Le(otherV Value) bool {
	other := otherV.(*ORSet)
	for elem, tags := range s.Adds {
		for t := range tags {
			if _, ok := other.Adds[elem][t]; !ok {
				return false
			}
		}
	}
	for elem, tags := range s.Tombstones {
		for t := range tags {
			if _, ok := other.Tombstones[elem][t]; !ok {
				return false
			}
		}
	}
	return true
}

// LWWRegister is a last-writer-wins register: a byte payload tagged with
// the LamportClock of the write that produced it.
type LWWRegister struct {
	Payload []byte
	Clock   LamportClock
}

// NewLWWRegister returns a register holding payload, stamped with clock.
func NewLWWRegister(payload []byte, clock LamportClock) *LWWRegister {
	return &LWWRegister{Payload: payload, Clock: clock}
}

func (r *LWWRegister) TypeName() string { return "LWWRegister" }

func (r *LWWRegister) Zero() Value { return &LWWRegister{} }

func (r *LWWRegister) Clone() Value {
	cp := make([]byte, len(r.Payload))
	copy(cp, r.Payload)
	return &LWWRegister{Payload: cp, Clock: r.Clock}
}

// Join picks the register with the later clock; ties are broken by
// ReplicaID, matching LamportClock.Less.
func (r *LWWRegister) Join(otherV Value) Value {
	other := otherV.(*LWWRegister)
	if other.Clock.Less(r.Clock) {
		return r.Clone()
	}
	return other.Clone()
}

func (r *LWWRegister) Le(otherV Value) bool {
	other := otherV.(*LWWRegister)
	return r.Clock.Less(other.Clock) || r.Clock.Equal(other.Clock)
}
