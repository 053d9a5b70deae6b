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

import "fmt"

// SegmentCrcError means a segment's footer CRC32 did not match its
// header+body bytes. Recovery fails on it; Recover has no option to skip
// a bad segment.
type SegmentCrcError struct{ ObjectKey string }

func (e *SegmentCrcError) Error() string {
	return fmt.Sprintf("persist: segment crc mismatch: %s", e.ObjectKey)
}

// SegmentMagicError means a segment's header or footer magic number did
// not match, or the object was too short to be a segment at all.
type SegmentMagicError struct {
	ObjectKey string
	Reason    string
}

func (e *SegmentMagicError) Error() string {
	return fmt.Sprintf("persist: malformed segment %s: %s", e.ObjectKey, e.Reason)
}

// ManifestCorruptionError means the manifest object failed to parse or
// its version did not increase monotonically. Recovery fails; this
// requires operator intervention.
type ManifestCorruptionError struct{ Reason string }

func (e *ManifestCorruptionError) Error() string {
	return fmt.Sprintf("persist: manifest corruption: %s", e.Reason)
}

// BackpressureError is returned by the write buffer when enqueuing would
// reach or exceed backpressure_threshold_bytes; the command layer turns this into
// a client-visible retry signal.
type BackpressureError struct {
	PendingBytes  int64
	ThresholdBytes int64
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("persist: backpressure: %d >= threshold %d", e.PendingBytes, e.ThresholdBytes)
}
