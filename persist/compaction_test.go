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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// testDelta is a minimal stand-in for the kv package's real encoded
// delta envelope, just enough to drive compaction's key/ts/tombstone
// logic without pulling kv into this package's tests.
type testDelta struct {
	Key       string `json:"k"`
	CausalTs  uint64 `json:"t"`
	Tombstone bool   `json:"d"`
	Value     string `json:"v"`
}

func encodeTestDelta(d testDelta) []byte {
	b, _ := json.Marshal(d)
	return b
}

func inspectTestDelta(raw []byte) (DeltaView, error) {
	var d testDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return DeltaView{}, err
	}
	return DeltaView{Key: d.Key, CausalTs: d.CausalTs, Tombstone: d.Tombstone}, nil
}

func TestCompactionLastWriteWinsAcrossSegments(t *testing.T) {
	// scenario E: S1=[k=a@1, k=b@2], S2=[k=a@3, k=c@4]
	s1 := Segment{Deltas: [][]byte{
		encodeTestDelta(testDelta{Key: "a", CausalTs: 1, Value: "a@1"}),
		encodeTestDelta(testDelta{Key: "b", CausalTs: 2, Value: "b@2"}),
	}}
	s2 := Segment{Deltas: [][]byte{
		encodeTestDelta(testDelta{Key: "a", CausalTs: 3, Value: "a@3"}),
		encodeTestDelta(testDelta{Key: "c", CausalTs: 4, Value: "c@4"}),
	}}

	out, err := Compact([]Segment{s1, s2}, inspectTestDelta, CompactConfig{NowTs: 4, TombstoneTTL: 1000})
	require.NoError(t, err)

	got := map[string]testDelta{}
	for _, seg := range out {
		for _, raw := range seg.Deltas {
			var d testDelta
			require.NoError(t, json.Unmarshal(raw, &d))
			got[d.Key] = d
		}
	}
	require.Len(t, got, 3)
	require.Equal(t, "a@3", got["a"].Value, "a's later write from S2 must win over S1's")
	require.Equal(t, "b@2", got["b"].Value)
	require.Equal(t, "c@4", got["c"].Value)
}

func TestCompactionDropsTombstonesPastTTL(t *testing.T) {
	s1 := Segment{Deltas: [][]byte{
		encodeTestDelta(testDelta{Key: "old-deleted", CausalTs: 1, Tombstone: true}),
		encodeTestDelta(testDelta{Key: "recently-deleted", CausalTs: 95, Tombstone: true}),
	}}

	out, err := Compact([]Segment{s1}, inspectTestDelta, CompactConfig{NowTs: 100, TombstoneTTL: 10})
	require.NoError(t, err)

	var keys []string
	for _, seg := range out {
		for _, raw := range seg.Deltas {
			var d testDelta
			require.NoError(t, json.Unmarshal(raw, &d))
			keys = append(keys, d.Key)
		}
	}
	require.NotContains(t, keys, "old-deleted")
	require.Contains(t, keys, "recently-deleted")
}

func TestCompactionChunksByTargetSegmentSize(t *testing.T) {
	var segs []Segment
	for i := 0; i < 10; i++ {
		segs = append(segs, Segment{Deltas: [][]byte{
			encodeTestDelta(testDelta{Key: string(rune('a' + i)), CausalTs: uint64(i + 1), Value: "padding-bytes-to-grow-size"}),
		}})
	}

	out, err := Compact(segs, inspectTestDelta, CompactConfig{NowTs: 1000, TombstoneTTL: 1000, TargetSegmentSize: 100})
	require.NoError(t, err)
	require.Greater(t, len(out), 1, "small target size should force multiple output segments")

	total := 0
	for _, seg := range out {
		total += len(seg.Deltas)
	}
	require.Equal(t, 10, total)
}

func TestCompactionEmptyInputYieldsNoSegments(t *testing.T) {
	out, err := Compact(nil, inspectTestDelta, CompactConfig{})
	require.NoError(t, err)
	require.Empty(t, out)
}
