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
	"github.com/google/btree"

	"github.com/nerdsane/kvdst/crdt"
)

// zsetEntry is one (member, score) pair ordered by score then member
// byte-order (invariant 3): for all a, b, (score_a, member_a) <
// (score_b, member_b) implies a ranks before b.
type zsetEntry struct {
	Member string
	Score  float64
}

func zsetLess(a, b zsetEntry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// SortedSet maps member→score with the total order above, backed by a
// google/btree.BTreeG for ordered rank and range queries — the same
// btree dependency the teacher uses for its own delta index.
type SortedSet struct {
	byMember map[string]float64
	order    *btree.BTreeG[zsetEntry]
}

// NewSortedSet returns an empty sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{
		byMember: map[string]float64{},
		order:    btree.NewG[zsetEntry](8, zsetLess),
	}
}

func (z *SortedSet) TypeName() string { return "SortedSet" }
func (z *SortedSet) Zero() crdt.Value { return NewSortedSet() }
func (z *SortedSet) Clone() crdt.Value {
	out := NewSortedSet()
	z.order.Ascend(func(e zsetEntry) bool {
		out.Add(e.Member, e.Score)
		return true
	})
	return out
}
func (z *SortedSet) Join(other crdt.Value) crdt.Value { return registerJoin(other) }
func (z *SortedSet) Le(otherV crdt.Value) bool {
	other := otherV.(*SortedSet)
	if len(z.byMember) != len(other.byMember) {
		return false
	}
	for m, s := range z.byMember {
		os, ok := other.byMember[m]
		if !ok || os != s {
			return false
		}
	}
	return true
}

// Add inserts or updates member's score, returning the previous score
// and whether the member already existed.
func (z *SortedSet) Add(member string, score float64) (float64, bool) {
	prev, existed := z.byMember[member]
	if existed {
		z.order.Delete(zsetEntry{Member: member, Score: prev})
	}
	z.byMember[member] = score
	z.order.ReplaceOrInsert(zsetEntry{Member: member, Score: score})
	return prev, existed
}

// Remove deletes member, reporting whether it was present.
func (z *SortedSet) Remove(member string) bool {
	score, ok := z.byMember[member]
	if !ok {
		return false
	}
	delete(z.byMember, member)
	z.order.Delete(zsetEntry{Member: member, Score: score})
	return true
}

// Score returns member's score and whether it is present.
func (z *SortedSet) Score(member string) (float64, bool) {
	s, ok := z.byMember[member]
	return s, ok
}

// Len returns the number of members.
func (z *SortedSet) Len() int { return len(z.byMember) }

// Rank returns member's zero-based rank in ascending (score, member)
// order, and whether it is present.
func (z *SortedSet) Rank(member string) (int, bool) {
	score, ok := z.byMember[member]
	if !ok {
		return 0, false
	}
	rank := 0
	z.order.AscendLessThan(zsetEntry{Member: member, Score: score}, func(e zsetEntry) bool {
		rank++
		return true
	})
	return rank, true
}

// RangeByRank returns members with ranks in [start, stop], Redis-style
// inclusive bounds with negative indices counting from the end.
func (z *SortedSet) RangeByRank(start, stop int64) []zsetEntry {
	n := int64(z.order.Len())
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	var out []zsetEntry
	idx := int64(0)
	z.order.Ascend(func(e zsetEntry) bool {
		if idx >= start && idx <= stop {
			out = append(out, e)
		}
		idx++
		return idx <= stop
	})
	return out
}

// Entries returns every (member, score) pair in ascending order, for
// snapshotting and wire encoding.
func (z *SortedSet) Entries() []zsetEntry {
	out := make([]zsetEntry, 0, z.order.Len())
	z.order.Ascend(func(e zsetEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// RangeByScore returns members with score in [min, max], ordered
// ascending.
func (z *SortedSet) RangeByScore(min, max float64) []zsetEntry {
	var out []zsetEntry
	z.order.Ascend(func(e zsetEntry) bool {
		if e.Score > max {
			return false
		}
		if e.Score >= min {
			out = append(out, e)
		}
		return true
	})
	return out
}
