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
package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerdsane/kvdst/simclock"
)

func TestSimulatedNoFaultsPassesThrough(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(1), FaultConfig{})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "k", []byte("v")))
	got, err := sim.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestSimulatedDropDiscardsWriteSilently(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(42), FaultConfig{DropProbability: 1.0})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "k", []byte("v")))
	_, err := base.Get(ctx, "k")
	require.Error(t, err, "dropped write must never reach the base store")
}

func TestSimulatedPartialWriteTruncatesPayload(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(7), FaultConfig{PartialWriteProbability: 1.0})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "k", []byte("0123456789")))
	got, err := base.Get(ctx, "k")
	require.NoError(t, err)
	require.Less(t, len(got), 10)
	require.Greater(t, len(got), 0)
}

func TestSimulatedPermissionDeniedOnAllOps(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(3), FaultConfig{PermissionDeniedProbability: 1.0})
	ctx := context.Background()

	err := sim.Put(ctx, "k", []byte("v"))
	require.Error(t, err)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestSimulatedDelayHoldsWriteUntilReadyAt(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(9), FaultConfig{DelayOps: 2})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "k", []byte("v")))
	_, err := base.Get(ctx, "k")
	require.Error(t, err, "delayed write must not be visible immediately")
	require.Equal(t, 1, sim.PendingCount())

	// two more ops elapse readyAt.
	require.NoError(t, sim.Put(ctx, "other1", []byte("x")))
	require.NoError(t, sim.Put(ctx, "other2", []byte("y")))

	got, err := base.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestSimulatedFlushForcesAllPendingWrites(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(11), FaultConfig{DelayOps: 1000})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "k", []byte("v")))
	require.Equal(t, 1, sim.PendingCount())

	sim.Flush()
	require.Equal(t, 0, sim.PendingCount())
	got, err := base.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestSimulatedReproducibleGivenSameSeed(t *testing.T) {
	cfg := FaultConfig{DropProbability: 0.5, PartialWriteProbability: 0.3}
	run := func(seed uint64) []bool {
		base := NewMemory(simclock.NewSimulated(0))
		sim := NewSimulated(base, simclock.NewSeeded(seed), cfg)
		ctx := context.Background()
		var landed []bool
		for i := 0; i < 20; i++ {
			key := "k"
			_ = sim.Put(ctx, key, []byte("0123456789"))
			_, err := base.Get(ctx, key)
			landed = append(landed, err == nil)
		}
		return landed
	}

	a := run(123)
	b := run(123)
	require.Equal(t, a, b)
}

func TestSimulatedReorderedWritesLandOnFlush(t *testing.T) {
	base := NewMemory(simclock.NewSimulated(0))
	sim := NewSimulated(base, simclock.NewSeeded(5), FaultConfig{DelayOps: 3, ReorderProbability: 1.0})
	ctx := context.Background()

	require.NoError(t, sim.Put(ctx, "first", []byte("1")))
	require.NoError(t, sim.Put(ctx, "second", []byte("2")))

	// second, delayed and reordered, is scheduled one operation after the
	// first pending entry; both stay pending until Flush.
	require.Equal(t, 2, sim.PendingCount())
	sim.Flush()
	_, err := base.Get(ctx, "first")
	require.NoError(t, err)
	_, err = base.Get(ctx, "second")
	require.NoError(t, err)
}
