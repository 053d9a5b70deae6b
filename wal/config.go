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

// Package wal is the crash-safe append-only write-ahead log: group-commit
// writer, file rotation, and torn-write-tolerant recovery.
package wal

import "github.com/docker/go-units"

// FsyncPolicy controls durability versus latency for WAL appends.
type FsyncPolicy int

const (
	// FsyncAlways fsyncs before acknowledging every group-committed batch.
	// RPO 0.
	FsyncAlways FsyncPolicy = iota
	// FsyncEverySecond acknowledges on append and fsyncs on a 1s timer.
	// RPO <= 1s.
	FsyncEverySecond
	// FsyncNone never calls fsync explicitly, relying on OS/page-cache
	// flush. RPO is unbounded.
	FsyncNone
)

func (p FsyncPolicy) String() string {
	switch p {
	case FsyncAlways:
		return "always"
	case FsyncEverySecond:
		return "every_second"
	case FsyncNone:
		return "no"
	default:
		return "unknown"
	}
}

// Config holds the WAL writer's tunables. SegmentMaxBytes is a byte
// count; ParseSizeBytes converts docker/go-units human sizes ("64MB",
// "1GiB") into one, matching the rest of the persistence layer's
// configuration style.
type Config struct {
	Dir                string
	SegmentMaxBytes    int64
	FsyncPolicy        FsyncPolicy
	FsyncIntervalMs    uint64 // used when FsyncPolicy == FsyncEverySecond
	GroupCommitMaxEntries int
	GroupCommitMaxWaitMs  uint64
}

// DefaultConfig returns sane defaults: 64MiB segments, fsync on every
// group commit, batches of up to 256 entries or 5ms of waiting.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                   dir,
		SegmentMaxBytes:       64 * 1024 * 1024,
		FsyncPolicy:           FsyncAlways,
		FsyncIntervalMs:       1000,
		GroupCommitMaxEntries: 256,
		GroupCommitMaxWaitMs:  5,
	}
}

// ParseSizeBytes parses a human-readable size ("64MB", "1GiB", "512") into
// bytes, delegating to docker/go-units the same way the rest of the
// persistence configuration surface parses size strings.
func ParseSizeBytes(s string) (int64, error) {
	return units.RAMInBytes(s)
}
