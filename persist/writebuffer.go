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
	"sync"
	"time"

	"github.com/nerdsane/kvdst/simclock"
)

// WriteBufferConfig names the flush triggers and the backpressure limit.
// All size fields are bytes; use wal.ParseSizeBytes to parse a
// human-readable config value before constructing this.
type WriteBufferConfig struct {
	FlushInterval              time.Duration
	MaxSizeBytes               int64
	MaxDeltas                  int
	BackpressureThresholdBytes int64
}

// WriteBuffer batches encoded deltas ahead of a segment flush. Enqueue
// never blocks; once pending bytes reach BackpressureThresholdBytes it
// returns *BackpressureError so the command layer can surface a
// client-visible retry signal instead of growing memory unbounded.
type WriteBuffer struct {
	cfg   WriteBufferConfig
	clock simclock.Clock

	mu            sync.Mutex
	pending       [][]byte
	bytes         int64
	oldestEnqueue simclock.Timestamp
	hasOldest     bool
}

// NewWriteBuffer returns an empty buffer governed by cfg.
func NewWriteBuffer(cfg WriteBufferConfig, clock simclock.Clock) *WriteBuffer {
	return &WriteBuffer{cfg: cfg, clock: clock}
}

// Enqueue appends delta to the pending batch. It fails with
// *BackpressureError, leaving delta un-enqueued, if doing so would put
// pending bytes at or above BackpressureThresholdBytes.
func (b *WriteBuffer) Enqueue(delta []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	projected := b.bytes + int64(len(delta))
	if b.cfg.BackpressureThresholdBytes > 0 && projected >= b.cfg.BackpressureThresholdBytes {
		return &BackpressureError{PendingBytes: projected, ThresholdBytes: b.cfg.BackpressureThresholdBytes}
	}

	if !b.hasOldest {
		b.oldestEnqueue = b.clock.Now()
		b.hasOldest = true
	}
	b.pending = append(b.pending, delta)
	b.bytes = projected
	return nil
}

// ShouldFlush reports whether any flush trigger has fired: byte
// threshold, delta count, or elapsed time since the oldest still-pending
// enqueue.
func (b *WriteBuffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldFlushLocked()
}

func (b *WriteBuffer) shouldFlushLocked() bool {
	if len(b.pending) == 0 {
		return false
	}
	if b.cfg.MaxSizeBytes > 0 && b.bytes >= b.cfg.MaxSizeBytes {
		return true
	}
	if b.cfg.MaxDeltas > 0 && len(b.pending) >= b.cfg.MaxDeltas {
		return true
	}
	if b.cfg.FlushInterval > 0 && b.hasOldest && b.clock.Elapsed(b.oldestEnqueue) >= b.cfg.FlushInterval {
		return true
	}
	return false
}

// Drain atomically takes every pending delta and resets the buffer,
// whether or not a trigger has fired — this backs both the automatic
// flush loop and an explicit flush_now() call.
func (b *WriteBuffer) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	b.bytes = 0
	b.hasOldest = false
	return out
}

// Requeue puts deltas back at the head of the buffer, used when a
// segment put to the object store fails: "the batch is re-enqueued at
// the head".
func (b *WriteBuffer) Requeue(deltas [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(deltas) == 0 {
		return
	}
	var size int64
	for _, d := range deltas {
		size += int64(len(d))
	}
	b.pending = append(deltas, b.pending...)
	b.bytes += size
	if !b.hasOldest {
		b.oldestEnqueue = b.clock.Now()
		b.hasOldest = true
	}
}

// PendingBytes reports the current backlog size, for metrics and tests.
func (b *WriteBuffer) PendingBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// PendingCount reports the number of queued deltas.
func (b *WriteBuffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
