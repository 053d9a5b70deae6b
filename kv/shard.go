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
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/nerdsane/kvdst/crdt"
	"github.com/nerdsane/kvdst/simclock"
)

// ttlEntry orders tracked expiries ascending by (expiry, key), so the
// sweeper can pop due keys off the front without scanning every entry.
type ttlEntry struct {
	Expiry uint64
	Key    string
}

func ttlLess(a, b ttlEntry) bool {
	if a.Expiry != b.Expiry {
		return a.Expiry < b.Expiry
	}
	return a.Key < b.Key
}

// SetOptions mirrors Redis SET's NX/XX/EX/PX/KEEPTTL modifiers.
type SetOptions struct {
	NX       bool // only set if key does not exist
	XX       bool // only set if key already exists
	ExpireMs uint64 // relative expiry in ms from now; 0 means "no expiry given"
	KeepTTL  bool   // preserve the key's existing expiry instead of clearing it
}

// Shard owns a disjoint, hash-partitioned slice of the keyspace
// (invariant 1). It is a single-writer actor: every mutating method
// takes Shard's own mutex for its full duration, so commands addressed
// to one shard are linearizable with respect to each other — generalizing
// the teacher's storageShard mutex-guarded delta buffer
// (storage/shard.go) from "buffer inserts, rebuild in background" to
// "mutate the live key→value map directly".
type Shard struct {
	id        int
	clock     simclock.Clock
	rng       simclock.Rng
	replicaID string

	mu             sync.Mutex
	repl           *crdt.ShardReplicaState
	lamportCounter uint64
	ttlIndex       *btree.BTreeG[ttlEntry]
	hot            *HotKeyDetector
	// emit, if set, is called with every delta this shard's own mutating
	// methods produce (not deltas arriving via ApplyDelta, which are
	// already replication/recovery intake, not something to re-emit).
	// Engine wires this to fan deltas out to its registered DeltaSinks.
	emit func(key string, delta crdt.ReplicationDelta)
}

// NewShard returns an empty shard numbered id, owned by replicaID. emit
// may be nil (no sinks registered).
func NewShard(id int, clock simclock.Clock, rng simclock.Rng, replicaID string, hotCfg HotKeyConfig, emit func(string, crdt.ReplicationDelta)) *Shard {
	return &Shard{
		id:        id,
		clock:     clock,
		rng:       rng,
		replicaID: replicaID,
		repl:      crdt.NewShardReplicaState(replicaID, true),
		ttlIndex:  btree.NewG[ttlEntry](8, ttlLess),
		hot:       NewHotKeyDetector(hotCfg),
		emit:      emit,
	}
}

func (s *Shard) nextClock() crdt.LamportClock {
	s.lamportCounter++
	return crdt.LamportClock{Counter: s.lamportCounter, ReplicaID: s.replicaID}
}

// applyLocked merges rv into the shard's replication state under key and
// returns the delta produced, for the caller to propagate. Caller must
// hold s.mu.
func (s *Shard) applyLocked(key string, rv crdt.ReplicatedValue, clock crdt.LamportClock) (crdt.ReplicationDelta, error) {
	delta := crdt.ReplicationDelta{Key: key, NewValue: rv, SourceReplicaID: s.replicaID, Causal: clock}
	if err := s.repl.Apply(delta); err != nil {
		return crdt.ReplicationDelta{}, err
	}
	if s.emit != nil {
		s.emit(key, delta)
	}
	return delta, nil
}

// ApplyDelta merges an externally-produced delta (from replication
// intake or WAL/segment recovery) into the shard, updating the TTL
// index the same way a local mutation would. Unlike the command
// methods, it does not record a hot-key access: replication and
// recovery traffic isn't client load.
func (s *Shard) ApplyDelta(delta crdt.ReplicationDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, hadOld := s.repl.Get(delta.Key)
	if err := s.repl.Apply(delta); err != nil {
		return err
	}
	s.trackTTLLocked(delta.Key, existing, hadOld, delta.NewValue.TTL)
	if delta.Causal.Counter > s.lamportCounter {
		s.lamportCounter = delta.Causal.Counter
	}
	return nil
}

// trackTTLLocked updates the TTL index for key given its old and new
// ReplicatedValue (either may be absent/untombstoned-with-no-TTL).
// Caller must hold s.mu.
func (s *Shard) trackTTLLocked(key string, old crdt.ReplicatedValue, hadOld bool, newTTL *simclock.Timestamp) {
	if hadOld && old.TTL != nil {
		s.ttlIndex.Delete(ttlEntry{Expiry: uint64(*old.TTL), Key: key})
	}
	if newTTL != nil {
		s.ttlIndex.ReplaceOrInsert(ttlEntry{Expiry: uint64(*newTTL), Key: key})
	}
}

// expireIfDueLocked checks whether the stored value for key has passed
// its TTL as of now; if so it tombstones the key and removes it from the
// TTL index, and returns (zero, false). Caller must hold s.mu.
func (s *Shard) expireIfDueLocked(key string, rv crdt.ReplicatedValue, now simclock.Timestamp) (crdt.ReplicatedValue, bool) {
	if !rv.Expired(now) {
		return rv, true
	}
	clock := s.nextClock()
	tomb := crdt.NewTombstone(clock)
	s.applyLocked(key, tomb, clock)
	s.ttlIndex.Delete(ttlEntry{Expiry: uint64(*rv.TTL), Key: key})
	return crdt.ReplicatedValue{}, false
}

// Get returns the live value at key, lazily expiring it first if its
// TTL has passed (invariant 2: a key past expiry is invisible to reads
// regardless of whether the sweeper has reclaimed it yet).
func (s *Shard) Get(key string) (crdt.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rv, ok := s.repl.Get(key)
	if !ok || rv.Tombstone {
		s.recordAccessLocked(key, false)
		return nil, false, nil
	}
	rv, ok = s.expireIfDueLocked(key, rv, s.clock.Now())
	s.recordAccessLocked(key, false)
	if !ok {
		return nil, false, nil
	}
	return rv.Value, true, nil
}

func (s *Shard) recordAccessLocked(key string, isWrite bool) {
	s.hot.RecordAccess(key, isWrite, uint64(s.clock.Now()))
}

// Set stores value at key honoring opts, returning whether the write was
// actually applied (false for an NX hit on an existing key or an XX miss
// on an absent one).
func (s *Shard) Set(key string, value crdt.Value, opts SetOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	liveOld := hadOld && !existing.Tombstone && !existing.Expired(now)

	if opts.NX && liveOld {
		s.recordAccessLocked(key, true)
		return false, nil
	}
	if opts.XX && !liveOld {
		s.recordAccessLocked(key, true)
		return false, nil
	}

	clock := s.nextClock()
	rv := crdt.NewReplicatedValue(value, clock)
	var newTTL *simclock.Timestamp
	switch {
	case opts.ExpireMs > 0:
		at := now.Add(msToDuration(opts.ExpireMs))
		newTTL = &at
	case opts.KeepTTL && liveOld && existing.TTL != nil:
		newTTL = existing.TTL
	}
	if newTTL != nil {
		rv = rv.WithTTL(*newTTL)
	}

	if _, err := s.applyLocked(key, rv, clock); err != nil {
		return false, err
	}
	s.trackTTLLocked(key, existing, hadOld, newTTL)
	s.recordAccessLocked(key, true)
	return true, nil
}

// Del removes key, reporting whether it was present (live) beforehand.
func (s *Shard) Del(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	live := hadOld && !existing.Tombstone && !existing.Expired(now)
	if !live {
		s.recordAccessLocked(key, true)
		return false, nil
	}

	clock := s.nextClock()
	tomb := crdt.NewTombstone(clock)
	if _, err := s.applyLocked(key, tomb, clock); err != nil {
		return false, err
	}
	s.trackTTLLocked(key, existing, hadOld, nil)
	s.recordAccessLocked(key, true)
	return true, nil
}

// Expire sets key's TTL to ttlMs from now; returns false if key is
// absent.
func (s *Shard) Expire(key string, ttlMs uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	if !hadOld || existing.Tombstone || existing.Expired(now) {
		return false, nil
	}

	clock := s.nextClock()
	at := now.Add(msToDuration(ttlMs))
	rv := crdt.NewReplicatedValue(existing.Value, clock).WithTTL(at)
	if _, err := s.applyLocked(key, rv, clock); err != nil {
		return false, err
	}
	s.trackTTLLocked(key, existing, hadOld, &at)
	return true, nil
}

// IncrBy adds delta to the integer parsed from key's current Bytes
// value (treating an absent key as 0), storing and returning the result.
func (s *Shard) IncrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	live := hadOld && !existing.Tombstone && !existing.Expired(now)

	var cur int64
	if live {
		b, ok := existing.Value.(*Bytes)
		if !ok {
			return 0, &WrongTypeError{Key: key, Expected: "Bytes", Got: existing.Value.TypeName()}
		}
		parsed, ok := b.AsInt()
		if !ok {
			return 0, &NotIntegerError{Key: key}
		}
		cur = parsed
	}
	next := cur + delta

	clock := s.nextClock()
	rv := crdt.NewReplicatedValue(NewBytes([]byte(formatInt(next))), clock)
	if live && existing.TTL != nil {
		rv = rv.WithTTL(*existing.TTL)
	}
	if _, err := s.applyLocked(key, rv, clock); err != nil {
		return 0, err
	}
	if live {
		s.trackTTLLocked(key, existing, hadOld, rv.TTL)
	}
	s.recordAccessLocked(key, true)
	return next, nil
}

// mutateCollection is the shared path for list/hash/set/zset commands:
// it loads the current value (creating zero via makeZero if the key is
// absent or expired), type-asserts it via cast, lets mutate run against
// it, then stores the result back under a fresh clock, preserving any
// existing TTL.
func mutateCollection[T crdt.Value](s *Shard, key string, expected string, makeZero func() T, cast func(crdt.Value) (T, bool), mutate func(T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	live := hadOld && !existing.Tombstone && !existing.Expired(now)

	var current T
	if live {
		v, ok := cast(existing.Value)
		if !ok {
			return &WrongTypeError{Key: key, Expected: expected, Got: existing.Value.TypeName()}
		}
		current = v
	} else {
		current = makeZero()
	}

	if err := mutate(current); err != nil {
		return err
	}

	clock := s.nextClock()
	rv := crdt.NewReplicatedValue(current, clock)
	if live && existing.TTL != nil {
		rv = rv.WithTTL(*existing.TTL)
	}
	if _, err := s.applyLocked(key, rv, clock); err != nil {
		return err
	}
	if live {
		s.trackTTLLocked(key, existing, hadOld, rv.TTL)
	}
	s.recordAccessLocked(key, true)
	return nil
}

// readCollection loads key's current live value for a read-only
// collection query, type-asserting via cast; an absent or expired key
// yields makeZero() rather than an error, matching Redis's "missing key
// reads as empty collection" convention.
func readCollection[T crdt.Value](s *Shard, key string, expected string, makeZero func() T, cast func(crdt.Value) (T, bool)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, hadOld := s.repl.Get(key)
	live := hadOld && !existing.Tombstone && !existing.Expired(now)
	s.recordAccessLocked(key, false)
	if !live {
		return makeZero(), nil
	}
	v, ok := cast(existing.Value)
	if !ok {
		var zero T
		return zero, &WrongTypeError{Key: key, Expected: expected, Got: existing.Value.TypeName()}
	}
	return v, nil
}

func castList(v crdt.Value) (*List, bool)           { l, ok := v.(*List); return l, ok }
func castHash(v crdt.Value) (*Hash, bool)           { h, ok := v.(*Hash); return h, ok }
func castSet(v crdt.Value) (*Set, bool)             { s, ok := v.(*Set); return s, ok }
func castSortedSet(v crdt.Value) (*SortedSet, bool) { z, ok := v.(*SortedSet); return z, ok }

// ListPushLeft/ListPushRight/ListRange implement LPUSH/RPUSH/LRANGE.

func (s *Shard) ListPushLeft(key string, values ...[]byte) (int, error) {
	var n int
	err := mutateCollection(s, key, "List", NewList, castList, func(l *List) error {
		n = l.PushLeft(values...)
		return nil
	})
	return n, err
}

func (s *Shard) ListPushRight(key string, values ...[]byte) (int, error) {
	var n int
	err := mutateCollection(s, key, "List", NewList, castList, func(l *List) error {
		n = l.PushRight(values...)
		return nil
	})
	return n, err
}

func (s *Shard) ListPopLeft(key string) ([]byte, bool, error) {
	var v []byte
	var ok bool
	err := mutateCollection(s, key, "List", NewList, castList, func(l *List) error {
		v, ok = l.PopLeft()
		return nil
	})
	return v, ok, err
}

func (s *Shard) ListPopRight(key string) ([]byte, bool, error) {
	var v []byte
	var ok bool
	err := mutateCollection(s, key, "List", NewList, castList, func(l *List) error {
		v, ok = l.PopRight()
		return nil
	})
	return v, ok, err
}

func (s *Shard) ListRange(key string, start, stop int64) ([][]byte, error) {
	l, err := readCollection(s, key, "List", NewList, castList)
	if err != nil {
		return nil, err
	}
	return l.Range(start, stop), nil
}

// HashSet/HashGet/HashDel/HashGetAll implement HSET/HGET/HDEL/HGETALL.

func (s *Shard) HashSet(key, field string, value []byte) (bool, error) {
	var existed bool
	err := mutateCollection(s, key, "Hash", NewHash, castHash, func(h *Hash) error {
		_, existed = h.Set(field, value)
		return nil
	})
	return !existed, err
}

func (s *Shard) HashGet(key, field string) ([]byte, bool, error) {
	h, err := readCollection(s, key, "Hash", NewHash, castHash)
	if err != nil {
		return nil, false, err
	}
	v, ok := h.Fields[field]
	return v, ok, nil
}

func (s *Shard) HashDel(key, field string) (bool, error) {
	var removed bool
	err := mutateCollection(s, key, "Hash", NewHash, castHash, func(h *Hash) error {
		removed = h.Del(field)
		return nil
	})
	return removed, err
}

func (s *Shard) HashGetAll(key string) (map[string][]byte, error) {
	h, err := readCollection(s, key, "Hash", NewHash, castHash)
	if err != nil {
		return nil, err
	}
	return h.Fields, nil
}

// SetAdd/SetRemove/SetMembers implement SADD/SREM/SMEMBERS.

func (s *Shard) SetAdd(key string, members ...string) (int, error) {
	var added int
	err := mutateCollection(s, key, "Set", NewSet, castSet, func(set *Set) error {
		for _, m := range members {
			if set.Add(m) {
				added++
			}
		}
		return nil
	})
	return added, err
}

func (s *Shard) SetRemove(key string, members ...string) (int, error) {
	var removed int
	err := mutateCollection(s, key, "Set", NewSet, castSet, func(set *Set) error {
		for _, m := range members {
			if set.Remove(m) {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (s *Shard) SetMembers(key string) ([]string, error) {
	set, err := readCollection(s, key, "Set", NewSet, castSet)
	if err != nil {
		return nil, err
	}
	return set.SortedMembers(), nil
}

// ZAdd/ZScore/ZRangeByRank/ZRank implement ZADD and friends.

func (s *Shard) ZAdd(key, member string, score float64) (bool, error) {
	var created bool
	err := mutateCollection(s, key, "SortedSet", NewSortedSet, castSortedSet, func(z *SortedSet) error {
		_, existed := z.Add(member, score)
		created = !existed
		return nil
	})
	return created, err
}

func (s *Shard) ZScore(key, member string) (float64, bool, error) {
	z, err := readCollection(s, key, "SortedSet", NewSortedSet, castSortedSet)
	if err != nil {
		return 0, false, err
	}
	score, ok := z.Score(member)
	return score, ok, nil
}

func (s *Shard) ZRangeByRank(key string, start, stop int64) ([]zsetEntry, error) {
	z, err := readCollection(s, key, "SortedSet", NewSortedSet, castSortedSet)
	if err != nil {
		return nil, err
	}
	return z.RangeByRank(start, stop), nil
}

func (s *Shard) ZRank(key, member string) (int, bool, error) {
	z, err := readCollection(s, key, "SortedSet", NewSortedSet, castSortedSet)
	if err != nil {
		return 0, false, err
	}
	rank, ok := z.Rank(member)
	return rank, ok, nil
}

// SweepExpired pops up to maxKeys expired entries off the front of the
// TTL index and tombstones them, bounding per-tick sweeper work (§4.2).
// Lazy expiry on Get remains authoritative; this only reclaims memory
// for keys nobody has read since they expired.
func (s *Shard) SweepExpired(nowMs uint64, maxKeys int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for removed < maxKeys {
		var due *ttlEntry
		s.ttlIndex.Ascend(func(e ttlEntry) bool {
			cp := e
			due = &cp
			return false
		})
		if due == nil || due.Expiry > nowMs {
			break
		}
		if rv, ok := s.repl.Get(due.Key); !ok || rv.Tombstone || rv.TTL == nil || uint64(*rv.TTL) != due.Expiry {
			s.ttlIndex.Delete(*due)
			continue
		}
		clock := s.nextClock()
		tomb := crdt.NewTombstone(clock)
		if _, err := s.applyLocked(due.Key, tomb, clock); err != nil {
			break
		}
		s.ttlIndex.Delete(*due)
		removed++
	}
	return removed
}

// HotKeys returns the n hottest keys tracked by this shard's detector.
func (s *Shard) HotKeys(n int) []keyRate {
	return s.hot.TopKeys(n, uint64(s.clock.Now()))
}

// Len reports the number of live (non-tombstoned) keys in the shard,
// for test assertions and Stats().
func (s *Shard) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	now := s.clock.Now()
	for _, rv := range s.repl.Snapshot() {
		if !rv.Tombstone && !rv.Expired(now) {
			count++
		}
	}
	return count
}

// Snapshot returns every key's current ReplicatedValue, live or
// tombstoned, for the checkpoint writer.
func (s *Shard) Snapshot() map[string]crdt.ReplicatedValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repl.Snapshot()
}

func msToDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
