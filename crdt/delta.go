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

// ReplicationDelta is emitted by every mutating engine operation. It is
// idempotent under Merge: replaying the same delta twice against a
// ShardReplicaState has the same effect as replaying it once.
type ReplicationDelta struct {
	Key             string
	NewValue        ReplicatedValue
	SourceReplicaID string
	Causal          LamportClock
	// ReplicationFactor is an optional hint set by the adaptive
	// replication manager (see AdaptiveReplicationManager); the
	// out-of-scope replication sender may use it to decide how many
	// peers to fan this delta out to. Zero means "use the configured
	// default".
	ReplicationFactor uint8
}
