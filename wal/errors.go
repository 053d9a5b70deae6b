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

import "fmt"

// CrcError describes an entry whose stored CRC32 does not match its
// payload. Replay does not return it: Decode reports a CRC mismatch as
// ErrTornEntry, and recovery treats that as the torn-write boundary:
// everything before it is valid, everything from there on is discarded.
type CrcError struct {
	File   string
	Offset int64
}

func (e *CrcError) Error() string {
	return fmt.Sprintf("wal: crc mismatch in %s at offset %d", e.File, e.Offset)
}

// FsyncFailedError means a group-commit batch's fsync call failed: every
// entry in that batch is unacknowledged, per the Always-mode contract.
type FsyncFailedError struct {
	File string
	Err  error
}

func (e *FsyncFailedError) Error() string {
	return fmt.Sprintf("wal: fsync failed on %s: %v", e.File, e.Err)
}
func (e *FsyncFailedError) Unwrap() error { return e.Err }

// AppendError wraps a failed write to the active segment file.
type AppendError struct {
	File string
	Err  error
}

func (e *AppendError) Error() string  { return fmt.Sprintf("wal: append failed on %s: %v", e.File, e.Err) }
func (e *AppendError) Unwrap() error { return e.Err }
