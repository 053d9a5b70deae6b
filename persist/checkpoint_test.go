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
)

type fakeSnapshot struct {
	data []byte
}

func (s *fakeSnapshot) Marshal() ([]byte, error) { return s.data, nil }
func (s *fakeSnapshot) Unmarshal(b []byte) error {
	s.data = append([]byte{}, b...)
	return nil
}

func TestCheckpointWriteThenLoadRoundTrips(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()

	original := &fakeSnapshot{data: []byte("the-entire-engine-state-serialized-somehow")}
	info, err := WriteCheckpoint(ctx, store, "db", original, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), info.AsOfTs)
	require.NotEmpty(t, info.ObjectKey)

	restored := &fakeSnapshot{}
	require.NoError(t, LoadCheckpoint(ctx, store, info, restored))
	require.Equal(t, original.data, restored.data)
}

func TestCheckpointIsActuallyCompressed(t *testing.T) {
	store := objectstore.NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	repetitive := make([]byte, 0, 8192)
	for i := 0; i < 400; i++ {
		repetitive = append(repetitive, []byte("highly-compressible-state-bytes;")...)
	}
	info, err := WriteCheckpoint(ctx, store, "db", &fakeSnapshot{data: repetitive}, 1)
	require.NoError(t, err)

	raw, err := store.Get(ctx, info.ObjectKey)
	require.NoError(t, err)
	require.Less(t, len(raw), len(repetitive))
}
