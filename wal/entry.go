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
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// ErrTornEntry is returned by Decode when a frame's header was readable
// but truncated payload bytes or a CRC mismatch shows the entry was never
// fully durable (a torn write). Distinct from io.EOF, which means the
// file ended cleanly on a frame boundary.
var ErrTornEntry = errors.New("wal: torn entry")

// Entry is one WAL record: a causally-ordered delta payload. CausalTs is
// the source shard's Lamport counter at the time of the write, used by
// ReplayWal to skip entries already captured in a segment and by
// truncation to decide which files are safe to delete.
type Entry struct {
	CausalTs uint64
	Payload  []byte
}

// frame layout on disk, one after another:
//   length   uint32 little-endian  (len(Payload))
//   crc32    uint32 little-endian  (IEEE CRC32 of causalTs || Payload)
//   causalTs uint64 little-endian
//   payload  []byte
const frameHeaderSize = 4 + 4 + 8

// crc covers causalTs and payload, not payload alone, so a bit-flip
// landing on the causalTs header field is caught by the torn-write
// check in Decode instead of silently corrupting replay ordering.
func crc(causalTs uint64, payload []byte) uint32 {
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], causalTs)
	h := crc32.NewIEEE()
	h.Write(tsBuf[:])
	h.Write(payload)
	return h.Sum32()
}

// Encode appends the wire framing for e to buf and returns the result.
func Encode(buf []byte, e Entry) []byte {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(e.Payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], crc(e.CausalTs, e.Payload))
	binary.LittleEndian.PutUint64(hdr[8:16], e.CausalTs)
	buf = append(buf, hdr[:]...)
	buf = append(buf, e.Payload...)
	return buf
}

// Decode reads exactly one framed entry from r. It returns io.EOF only
// when zero bytes could be read at a frame boundary (clean end of file);
// a partial header, a truncated payload, or a CRC mismatch all return
// ErrTornEntry so the caller (recovery) can tell "nothing more to read"
// from "the file ends mid-write".
func Decode(r io.Reader) (Entry, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Entry{}, io.EOF
		}
		return Entry{}, ErrTornEntry
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	wantCrc := binary.LittleEndian.Uint32(hdr[4:8])
	causalTs := binary.LittleEndian.Uint64(hdr[8:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Entry{}, ErrTornEntry
	}
	if crc(causalTs, payload) != wantCrc {
		return Entry{}, ErrTornEntry
	}
	return Entry{CausalTs: causalTs, Payload: payload}, nil
}
