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
	"github.com/nerdsane/kvdst/crdt"
	"github.com/nerdsane/kvdst/simclock"
)

// Entry is the read-facing projection of a key's state: its Value, an
// optional absolute expiry, the LamportClock of the mutation that last
// touched it, and whatever access metrics the shard's hot-key detector
// has accumulated. Shard does not store Entry directly — the Value,
// expiry and clock live in a crdt.ReplicatedValue (so the same storage
// serves both local reads and replication), and AccessMetrics lives in
// HotKeyDetector — Entry exists to hand callers one coherent read-only
// view of both without leaking either internal representation.
type Entry struct {
	Value  crdt.Value
	Expiry *simclock.Timestamp
	Clock  crdt.LamportClock
	Access AccessMetrics
}
