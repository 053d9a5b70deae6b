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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentRoundTripNoCompression(t *testing.T) {
	seg := Segment{
		Header: SegmentHeader{Version: 1, Compression: CompressionNone, Count: 2, MinTs: 1, MaxTs: 2},
		Deltas: [][]byte{[]byte("delta-one"), []byte("delta-two")},
	}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)

	decoded, err := DecodeSegment(encoded)
	require.NoError(t, err)
	require.Equal(t, seg.Header.Version, decoded.Header.Version)
	require.Equal(t, seg.Header.MinTs, decoded.Header.MinTs)
	require.Equal(t, seg.Header.MaxTs, decoded.Header.MaxTs)
	require.Equal(t, seg.Deltas, decoded.Deltas)
}

func TestSegmentRoundTripLZ4Compression(t *testing.T) {
	payload := make([]byte, 0, 4096)
	for i := 0; i < 200; i++ {
		payload = append(payload, []byte("repeat-me-please-compress-well;")...)
	}
	seg := Segment{
		Header: SegmentHeader{Version: 1, Compression: CompressionLZ4, Count: 1},
		Deltas: [][]byte{payload},
	}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	require.Less(t, len(encoded), len(payload), "repetitive payload should compress smaller than raw")

	decoded, err := DecodeSegment(encoded)
	require.NoError(t, err)
	require.Equal(t, seg.Deltas, decoded.Deltas)
}

func TestSegmentLZ4HandlesIncompressibleSmallPayload(t *testing.T) {
	seg := Segment{
		Header: SegmentHeader{Version: 1, Compression: CompressionLZ4, Count: 1},
		Deltas: [][]byte{[]byte("x")},
	}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	decoded, err := DecodeSegment(encoded)
	require.NoError(t, err)
	require.Equal(t, seg.Deltas, decoded.Deltas)
}

func TestSegmentDecodeRejectsCorruptedCrc(t *testing.T) {
	seg := Segment{Header: SegmentHeader{Version: 1, Count: 1}, Deltas: [][]byte{[]byte("abc")}}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	encoded[10] ^= 0xFF // corrupt a header/body byte without touching the footer

	_, err = DecodeSegment(encoded)
	require.Error(t, err)
	var crcErr *SegmentCrcError
	require.ErrorAs(t, err, &crcErr)
}

func TestSegmentDecodeRejectsBadMagic(t *testing.T) {
	seg := Segment{Header: SegmentHeader{Version: 1, Count: 1}, Deltas: [][]byte{[]byte("abc")}}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	encoded[0] ^= 0xFF

	_, err = DecodeSegment(encoded)
	require.Error(t, err)
	var magicErr *SegmentMagicError
	require.ErrorAs(t, err, &magicErr)
}

func TestSegmentDecodeRejectsTooShortObject(t *testing.T) {
	_, err := DecodeSegment([]byte("short"))
	require.Error(t, err)
	var magicErr *SegmentMagicError
	require.ErrorAs(t, err, &magicErr)
}

func TestSegmentEmptyDeltasRoundTrip(t *testing.T) {
	seg := Segment{Header: SegmentHeader{Version: 1}}
	encoded, err := EncodeSegment(seg)
	require.NoError(t, err)
	decoded, err := DecodeSegment(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Deltas)
}
