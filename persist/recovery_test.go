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
package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerdsane/kvdst/objectstore"
	"github.com/nerdsane/kvdst/simclock"
	"github.com/nerdsane/kvdst/wal"
)

type recordingApplier struct {
	applied [][]byte
}

func (a *recordingApplier) ApplyEncoded(raw []byte) error {
	a.applied = append(a.applied, append([]byte{}, raw...))
	return nil
}

func TestRecoverFreshEngineWithNoManifestIsNotAnError(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	applier := &recordingApplier{}
	res, err := Recover(context.Background(), store, "db", t.TempDir(), &fakeSnapshot{}, applier)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.ManifestVersion)
	require.Empty(t, applier.applied)
}

func TestRecoverReplaysSegmentsThenWalTail(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()

	seg := Segment{
		Header: SegmentHeader{Version: 1, Count: 1, MinTs: 1, MaxTs: 1},
		Deltas: [][]byte{[]byte("segment-delta")},
	}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "db/segments/s1", encoded))

	mm := NewManifestManager(store, "db")
	require.NoError(t, mm.Publish(ctx, Manifest{
		Version:  1,
		Segments: []SegmentInfo{{ID: "s1", ObjectKey: "db/segments/s1", MinTs: 1, MaxTs: 1}},
	}))

	walDir := t.TempDir()
	w, err := wal.NewWriter(wal.DefaultConfig(walDir))
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, wal.Entry{CausalTs: 2, Payload: []byte("wal-tail-delta")}))
	require.NoError(t, w.Close())

	applier := &recordingApplier{}
	res, err := Recover(ctx, store, "db", walDir, &fakeSnapshot{}, applier)
	require.NoError(t, err)
	require.Equal(t, 1, res.SegmentsReplayed)
	require.Equal(t, 1, res.WalEntriesReplayed)
	require.Equal(t, uint64(2), res.LastTs)
	require.Equal(t, [][]byte{[]byte("segment-delta"), []byte("wal-tail-delta")}, applier.applied)
}

func TestRecoverSkipsWalEntriesAlreadyInSegments(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()

	seg := Segment{Header: SegmentHeader{Version: 1, Count: 1, MaxTs: 5}, Deltas: [][]byte{[]byte("already-durable")}}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "db/segments/s1", encoded))

	mm := NewManifestManager(store, "db")
	require.NoError(t, mm.Publish(ctx, Manifest{
		Version:  1,
		Segments: []SegmentInfo{{ID: "s1", ObjectKey: "db/segments/s1", MaxTs: 5}},
	}))

	walDir := t.TempDir()
	w, err := wal.NewWriter(wal.DefaultConfig(walDir))
	require.NoError(t, err)
	// this entry's ts is <= the segment's max_ts: already captured, must
	// not be re-applied.
	require.NoError(t, w.Append(ctx, wal.Entry{CausalTs: 5, Payload: []byte("stale-duplicate")}))
	require.NoError(t, w.Append(ctx, wal.Entry{CausalTs: 6, Payload: []byte("genuinely-new")}))
	require.NoError(t, w.Close())

	applier := &recordingApplier{}
	res, err := Recover(ctx, store, "db", walDir, &fakeSnapshot{}, applier)
	require.NoError(t, err)
	require.Equal(t, 1, res.WalEntriesReplayed)
	require.Equal(t, [][]byte{[]byte("already-durable"), []byte("genuinely-new")}, applier.applied)
}

func TestRecoverLoadsCheckpointAndSkipsSupersededSegments(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()

	snapshot := &fakeSnapshot{data: []byte("checkpointed-state")}
	info, err := WriteCheckpoint(ctx, store, "db", snapshot, 10)
	require.NoError(t, err)

	oldSeg := Segment{Header: SegmentHeader{Version: 1, MaxTs: 5}, Deltas: [][]byte{[]byte("superseded")}}
	oldEncoded, err := EncodeSegment(oldSeg)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "db/segments/old", oldEncoded))

	newSeg := Segment{Header: SegmentHeader{Version: 1, MaxTs: 20}, Deltas: [][]byte{[]byte("post-checkpoint")}}
	newEncoded, err := EncodeSegment(newSeg)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "db/segments/new", newEncoded))

	mm := NewManifestManager(store, "db")
	require.NoError(t, mm.Publish(ctx, Manifest{
		Version:    1,
		Checkpoint: &info,
		Segments: []SegmentInfo{
			{ObjectKey: "db/segments/old", MaxTs: 5},
			{ObjectKey: "db/segments/new", MaxTs: 20},
		},
	}))

	restored := &fakeSnapshot{}
	applier := &recordingApplier{}
	res, err := Recover(ctx, store, "db", t.TempDir(), restored, applier)
	require.NoError(t, err)
	require.Equal(t, []byte("checkpointed-state"), restored.data)
	require.Equal(t, 1, res.SegmentsReplayed)
	require.Equal(t, [][]byte{[]byte("post-checkpoint")}, applier.applied)
}
