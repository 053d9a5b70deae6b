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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerdsane/kvdst/objectstore"
	"github.com/nerdsane/kvdst/simclock"
)

func TestPipelineFlushNowPublishesASegmentAndManifest(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	p := NewPipeline(store, simclock.NewSimulated(0), PipelineConfig{
		Prefix:      "db",
		WriteBuffer: WriteBufferConfig{MaxDeltas: 1000},
	})
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Enqueue([]byte("delta-1")))
	require.NoError(t, p.Enqueue([]byte("delta-2")))
	require.NoError(t, p.FlushNow(context.Background()))

	mm := NewManifestManager(store, "db")
	manifest, err := mm.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Segments, 1)

	data, err := store.Get(context.Background(), manifest.Segments[0].ObjectKey)
	require.NoError(t, err)
	seg, err := DecodeSegment(data)
	require.NoError(t, err)
	require.Len(t, seg.Deltas, 2)
}

func TestPipelineBackgroundLoopFlushesOnTrigger(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	p := NewPipeline(store, simclock.NewSimulated(0), PipelineConfig{
		Prefix:       "db",
		WriteBuffer:  WriteBufferConfig{MaxDeltas: 1},
		PollInterval: 5 * time.Millisecond,
	})
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Enqueue([]byte("delta")))

	require.Eventually(t, func() bool {
		mm := NewManifestManager(store, "db")
		m, err := mm.Load(context.Background())
		return err == nil && len(m.Segments) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPipelineShutdownFlushesPendingDeltas(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	p := NewPipeline(store, simclock.NewSimulated(0), PipelineConfig{
		Prefix:      "db",
		WriteBuffer: WriteBufferConfig{MaxDeltas: 1000},
	})
	require.NoError(t, p.Enqueue([]byte("final-delta")))
	p.Shutdown(context.Background())

	mm := NewManifestManager(store, "db")
	manifest, err := mm.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Segments, 1)
}
