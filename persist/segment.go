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

// Package persist is the streaming object-store persistence pipeline:
// write buffer, segment codec, manifest, checkpoint, compaction and the
// multi-phase recovery that rebuilds engine state from them.
package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pierrec/lz4/v4"
)

const segmentHeaderMagic uint32 = 0x52445353 // "RDSS"
const segmentFooterMagic uint32 = 0x52445346 // "RDSF"

// Compression identifies a segment body's encoding. Codec 1 is declared
// "zstd" in the wire format this module descends from; no zstd binding
// exists anywhere in this module's dependency set, so codec 1 here is
// lz4 (github.com/pierrec/lz4/v4) instead — same codec slot, substituted
// compressor, documented so nobody mistakes a segment written by this
// module for zstd-compressed bytes.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
)

// SegmentHeader precedes a segment's delta frames.
type SegmentHeader struct {
	Version     uint16
	Compression Compression
	Count       uint32
	MinTs       uint64
	MaxTs       uint64
}

// Segment is one immutable batch of encoded deltas as read from or
// written to the object store. Deltas are opaque payloads here — the kv
// package owns serializing a crdt.ReplicationDelta to bytes and back.
type Segment struct {
	Header SegmentHeader
	Deltas [][]byte
}

// EncodeSegment serializes s per the wire layout:
//
//	header  { magic u32, version u16, compression u8, count u32, min_ts u64, max_ts u64 }
//	body    sequence of (length u32, payload) frames, payload optionally compressed
//	footer  { crc32 u32 (over header+body), magic u32 }
func EncodeSegment(s Segment) ([]byte, error) {
	var body bytes.Buffer
	for _, d := range s.Deltas {
		payload := d
		if s.Header.Compression == CompressionLZ4 {
			compressed, err := compressLZ4(d)
			if err != nil {
				return nil, err
			}
			payload = compressed
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		body.Write(lenBuf[:])
		body.Write(payload)
	}

	var out bytes.Buffer
	writeUint32(&out, segmentHeaderMagic)
	writeUint16(&out, s.Header.Version)
	out.WriteByte(byte(s.Header.Compression))
	writeUint32(&out, s.Header.Count)
	writeUint64(&out, s.Header.MinTs)
	writeUint64(&out, s.Header.MaxTs)
	out.Write(body.Bytes())

	sum := crc32.ChecksumIEEE(out.Bytes())
	writeUint32(&out, sum)
	writeUint32(&out, segmentFooterMagic)
	return out.Bytes(), nil
}

// DecodeSegment validates the footer CRC32 and magic numbers before
// parsing frames, so a corrupted object is rejected as *SegmentCrcError
// or *SegmentMagicError before any delta is handed to the caller.
func DecodeSegment(data []byte) (Segment, error) {
	const headerSize = 4 + 2 + 1 + 4 + 8 + 8
	const footerSize = 4 + 4
	if len(data) < headerSize+footerSize {
		return Segment{}, &SegmentMagicError{Reason: "too short"}
	}

	header := data[:headerSize]
	footer := data[len(data)-footerSize:]
	bodyAndHeader := data[:len(data)-footerSize]

	if binary.BigEndian.Uint32(header[0:4]) != segmentHeaderMagic {
		return Segment{}, &SegmentMagicError{Reason: "bad header magic"}
	}
	if binary.BigEndian.Uint32(footer[4:8]) != segmentFooterMagic {
		return Segment{}, &SegmentMagicError{Reason: "bad footer magic"}
	}
	wantCrc := binary.BigEndian.Uint32(footer[0:4])
	if crc32.ChecksumIEEE(bodyAndHeader) != wantCrc {
		return Segment{}, &SegmentCrcError{}
	}

	hdr := SegmentHeader{
		Version:     binary.BigEndian.Uint16(header[4:6]),
		Compression: Compression(header[6]),
		Count:       binary.BigEndian.Uint32(header[7:11]),
		MinTs:       binary.BigEndian.Uint64(header[11:19]),
		MaxTs:       binary.BigEndian.Uint64(header[19:27]),
	}

	body := data[headerSize : len(data)-footerSize]
	deltas := make([][]byte, 0, hdr.Count)
	r := bytes.NewReader(body)
	for r.Len() > 0 {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return Segment{}, &SegmentCrcError{}
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Segment{}, &SegmentCrcError{}
		}
		if hdr.Compression == CompressionLZ4 {
			decompressed, err := decompressLZ4(payload)
			if err != nil {
				return Segment{}, &SegmentCrcError{}
			}
			payload = decompressed
		}
		deltas = append(deltas, payload)
	}

	return Segment{Header: hdr, Deltas: deltas}, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	if n == 0 && len(data) > 0 {
		// incompressible input: lz4 signals this by writing zero bytes.
		return encodeUncompressedLZ4Fallback(data), nil
	}
	return encodeLZ4Frame(uint32(len(data)), buf[:n]), nil
}

// encodeLZ4Frame prefixes the compressed block with its decompressed
// size, since lz4's block API needs it back on decode.
func encodeLZ4Frame(originalSize uint32, block []byte) []byte {
	out := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(out[0:4], originalSize)
	copy(out[4:], block)
	return out
}

// encodeUncompressedLZ4Fallback marks a block as stored-raw by setting
// the high bit of the size prefix, for the rare incompressible payload.
func encodeUncompressedLZ4Fallback(data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(data))|0x80000000)
	copy(out[4:], data)
	return out
}

func decompressLZ4(frame []byte) ([]byte, error) {
	if len(frame) < 4 {
		return nil, fmt.Errorf("persist: lz4 frame too short")
	}
	sizeField := binary.BigEndian.Uint32(frame[0:4])
	if sizeField&0x80000000 != 0 {
		size := sizeField &^ 0x80000000
		return frame[4 : 4+size], nil
	}
	out := make([]byte, sizeField)
	n, err := lz4.UncompressBlock(frame[4:], out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
