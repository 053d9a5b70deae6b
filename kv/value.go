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
	"bytes"
	"math"
	"sort"

	"github.com/nerdsane/kvdst/crdt"
)

// registerJoin is shared by every plain (non-CRDT) Value variant's Join
// method. kvdst never constructs a crdt.ShardReplicaState with
// registerMode false for a kv shard, so ReplicatedValue.Merge always
// resolves live-vs-live by last-writer-wins before it would ever reach
// Value.Join; this method exists only to satisfy the crdt.Value
// interface and is not reachable from Shard's own code paths. It
// returns other's clone so that, if it were ever invoked, the result at
// least matches "the value that arrived later wins".
func registerJoin(other crdt.Value) crdt.Value {
	return other.Clone()
}

// Bytes is the SDS primitive: an opaque owned byte sequence.
type Bytes struct {
	Data []byte
}

// NewBytes copies data into a new Bytes value.
func NewBytes(data []byte) *Bytes {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Bytes{Data: cp}
}

func (b *Bytes) TypeName() string { return "Bytes" }
func (b *Bytes) Zero() crdt.Value { return NewBytes(nil) }
func (b *Bytes) Clone() crdt.Value {
	return NewBytes(b.Data)
}
func (b *Bytes) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (b *Bytes) Le(otherV crdt.Value) bool {
	other := otherV.(*Bytes)
	return bytes.Equal(b.Data, other.Data)
}

// AsInt parses Data as a base-10 signed integer, for INCRBY.
func (b *Bytes) AsInt() (int64, bool) {
	if len(b.Data) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b.Data[0] == '-' {
		neg = true
		i = 1
	}
	if i == len(b.Data) {
		return 0, false
	}
	var v int64
	for ; i < len(b.Data); i++ {
		c := b.Data[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v, true
}

// List is an ordered sequence of Bytes supporting head/tail push/pop,
// range and trim.
type List struct {
	Items [][]byte
}

// NewList returns an empty list.
func NewList() *List { return &List{} }

func (l *List) TypeName() string { return "List" }
func (l *List) Zero() crdt.Value { return NewList() }
func (l *List) Clone() crdt.Value {
	out := NewList()
	out.Items = make([][]byte, len(l.Items))
	for i, v := range l.Items {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.Items[i] = cp
	}
	return out
}
func (l *List) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (l *List) Le(otherV crdt.Value) bool {
	other := otherV.(*List)
	if len(l.Items) != len(other.Items) {
		return false
	}
	for i := range l.Items {
		if !bytes.Equal(l.Items[i], other.Items[i]) {
			return false
		}
	}
	return true
}

// PushLeft prepends values, head first, matching LPUSH's argument order.
func (l *List) PushLeft(values ...[]byte) int {
	for _, v := range values {
		l.Items = append([][]byte{v}, l.Items...)
	}
	return len(l.Items)
}

// PushRight appends values in order, matching RPUSH.
func (l *List) PushRight(values ...[]byte) int {
	l.Items = append(l.Items, values...)
	return len(l.Items)
}

// PopLeft removes and returns the head element, if any.
func (l *List) PopLeft() ([]byte, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	v := l.Items[0]
	l.Items = l.Items[1:]
	return v, true
}

// PopRight removes and returns the tail element, if any.
func (l *List) PopRight() ([]byte, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	v := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	return v, true
}

// Range returns a copy of Items[start:stop] clamped to bounds; negative
// indices count from the end, matching LRANGE.
func (l *List) Range(start, stop int64) [][]byte {
	n := int64(len(l.Items))
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start > stop || start >= n {
		return nil
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, l.Items[i])
	}
	return out
}

func clampIndex(idx, n int64) int64 {
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Hash is a field→Bytes mapping with unique keys; insertion order is
// irrelevant.
type Hash struct {
	Fields map[string][]byte
}

// NewHash returns an empty hash.
func NewHash() *Hash { return &Hash{Fields: map[string][]byte{}} }

func (h *Hash) TypeName() string { return "Hash" }
func (h *Hash) Zero() crdt.Value { return NewHash() }
func (h *Hash) Clone() crdt.Value {
	out := NewHash()
	for k, v := range h.Fields {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.Fields[k] = cp
	}
	return out
}
func (h *Hash) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (h *Hash) Le(otherV crdt.Value) bool {
	other := otherV.(*Hash)
	if len(h.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range h.Fields {
		ov, ok := other.Fields[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// Set returns the previous value for field and whether it existed.
func (h *Hash) Set(field string, value []byte) ([]byte, bool) {
	prev, existed := h.Fields[field]
	cp := make([]byte, len(value))
	copy(cp, value)
	h.Fields[field] = cp
	return prev, existed
}

// Del removes field, reporting whether it was present.
func (h *Hash) Del(field string) bool {
	_, ok := h.Fields[field]
	delete(h.Fields, field)
	return ok
}

// Set is a set of Bytes, keyed by their string form for map storage.
type Set struct {
	Members map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{Members: map[string]struct{}{}} }

func (s *Set) TypeName() string { return "Set" }
func (s *Set) Zero() crdt.Value { return NewSet() }
func (s *Set) Clone() crdt.Value {
	out := NewSet()
	for m := range s.Members {
		out.Members[m] = struct{}{}
	}
	return out
}
func (s *Set) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (s *Set) Le(otherV crdt.Value) bool {
	other := otherV.(*Set)
	if len(s.Members) != len(other.Members) {
		return false
	}
	for m := range s.Members {
		if _, ok := other.Members[m]; !ok {
			return false
		}
	}
	return true
}

// Add inserts member, reporting whether it was newly added.
func (s *Set) Add(member string) bool {
	if _, ok := s.Members[member]; ok {
		return false
	}
	s.Members[member] = struct{}{}
	return true
}

// Remove deletes member, reporting whether it was present.
func (s *Set) Remove(member string) bool {
	_, ok := s.Members[member]
	delete(s.Members, member)
	return ok
}

// SortedMembers returns every member in byte-order, for deterministic
// iteration (SMEMBERS has no ordering contract in Redis, but determinism
// matters for DST replay).
func (s *Set) SortedMembers() []string {
	out := make([]string, 0, len(s.Members))
	for m := range s.Members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Distribution is a running statistical summary: count, sum, sum of
// squares, and a capped reservoir of raw samples for percentile queries.
type Distribution struct {
	Count     uint64
	Sum       float64
	SumSq     float64
	Reservoir []float64
	Cap       int
	seen      uint64 // total Add calls, including ones that didn't land in the reservoir
}

// NewDistribution returns an empty distribution with the given reservoir
// capacity K.
func NewDistribution(capK int) *Distribution {
	return &Distribution{Cap: capK}
}

func (d *Distribution) TypeName() string { return "Distribution" }
func (d *Distribution) Zero() crdt.Value { return NewDistribution(d.Cap) }
func (d *Distribution) Clone() crdt.Value {
	out := NewDistribution(d.Cap)
	out.Count, out.Sum, out.SumSq, out.seen = d.Count, d.Sum, d.SumSq, d.seen
	out.Reservoir = append([]float64(nil), d.Reservoir...)
	return out
}
func (d *Distribution) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (d *Distribution) Le(otherV crdt.Value) bool {
	other := otherV.(*Distribution)
	return d.Count == other.Count && d.Sum == other.Sum && d.SumSq == other.SumSq
}

// sampleRng abstracts the one random decision Distribution.Add makes
// (reservoir replacement index), so it can be driven by simclock.Rng
// instead of math/rand directly.
type sampleRng interface {
	IntN(n int) int
}

// Add records one observation. rng is consulted only once the reservoir
// is full, to pick (via reservoir sampling) whether and where the new
// sample replaces an existing one.
func (d *Distribution) Add(x float64, rng sampleRng) {
	d.Count++
	d.Sum += x
	d.SumSq += x * x
	d.seen++
	if len(d.Reservoir) < d.Cap {
		d.Reservoir = append(d.Reservoir, x)
		return
	}
	if d.Cap == 0 {
		return
	}
	j := rng.IntN(int(d.seen))
	if j < d.Cap {
		d.Reservoir[j] = x
	}
}

// Mean returns Sum/Count, or 0 for an empty distribution.
func (d *Distribution) Mean() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Sum / float64(d.Count)
}

// Stddev returns the population standard deviation.
func (d *Distribution) Stddev() float64 {
	if d.Count == 0 {
		return 0
	}
	mean := d.Mean()
	variance := d.SumSq/float64(d.Count) - mean*mean
	if variance < 0 {
		variance = 0 // guards against floating-point cancellation
	}
	return math.Sqrt(variance)
}

// Percentile returns the p-th percentile (0..100) of the reservoir
// sample, linearly interpolated between the two bracketing order
// statistics. Returns 0 for an empty reservoir.
func (d *Distribution) Percentile(p float64) float64 {
	if len(d.Reservoir) == 0 {
		return 0
	}
	sorted := append([]float64(nil), d.Reservoir...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
