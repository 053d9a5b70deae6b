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

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a/b", []byte("hello")))
	data, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestMemoryGetMissingIsNotFound(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	_, err := m.Get(context.Background(), "missing")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestMemoryPutDefensiveCopy(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	buf := []byte("original")
	require.NoError(t, m.Put(ctx, "k", buf))
	buf[0] = 'X'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

func TestMemoryGetDefensiveCopy(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("original")))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'X'

	got2, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got2)
}

func TestMemoryListPrefixAndSort(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "seg/0002", []byte("b")))
	require.NoError(t, m.Put(ctx, "seg/0001", []byte("a")))
	require.NoError(t, m.Put(ctx, "manifest/current", []byte("m")))

	res, err := m.List(ctx, "seg/", "")
	require.NoError(t, err)
	require.Len(t, res.Objects, 2)
	require.Equal(t, "seg/0001", res.Objects[0].Key)
	require.Equal(t, "seg/0002", res.Objects[1].Key)
}

func TestMemoryRenameMovesAndRemovesSource(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "from", []byte("data")))
	require.NoError(t, m.Rename(ctx, "from", "to"))

	_, err := m.Get(ctx, "from")
	require.Error(t, err)
	got, err := m.Get(ctx, "to")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
}

func TestMemoryRenameMissingSourceIsNotFound(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	err := m.Rename(context.Background(), "nope", "to")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("v")))
	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))
}

func TestMemoryHeadReportsSize(t *testing.T) {
	m := NewMemory(simclock.NewSimulated(0))
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("12345")))

	meta, err := m.Head(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.SizeBytes)
}
