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
package kv

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dc0d/onexit"
	"github.com/google/uuid"

	"github.com/nerdsane/kvdst/crdt"
	"github.com/nerdsane/kvdst/objectstore"
	"github.com/nerdsane/kvdst/persist"
	"github.com/nerdsane/kvdst/simclock"
)

// SegmentWriterConfig bundles what SegmentWriter needs beyond what
// persist.Pipeline already takes: persist.Pipeline leaves a segment's
// MinTs/MaxTs at zero since it never interprets delta payloads, so the
// kv package builds its own thin flush loop here that does, tracking
// each buffered delta's Lamport counter as it is enqueued.
type SegmentWriterConfig struct {
	Prefix      string
	WriteBuffer persist.WriteBufferConfig
	Compression persist.Compression
	PollInterval time.Duration
}

// SegmentWriter is a DeltaSink that encodes and buffers every delta an
// Engine produces, flushing them into manifest-tracked segments with
// accurate causal-timestamp bounds — the persistence half of the
// pipeline described in §4.5, grounded directly on persist.Pipeline's own
// buffer/manifest/flush-loop shape but specialized to a type that knows
// what's inside a delta.
type SegmentWriter struct {
	cfg   SegmentWriterConfig
	store objectstore.Store
	clock simclock.Clock
	mm    *persist.ManifestManager

	mu         sync.Mutex
	pending    [][]byte
	pendingMin uint64
	pendingMax uint64
	hasPending bool
	segmentSeq uint64

	stopCh   chan struct{}
	stopped  chan struct{}
	onceStop sync.Once
}

// NewSegmentWriter wires a SegmentWriter over store, starts its flush
// loop, and registers its shutdown with onexit.
func NewSegmentWriter(store objectstore.Store, clock simclock.Clock, cfg SegmentWriterConfig) *SegmentWriter {
	w := &SegmentWriter{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		mm:      persist.NewManifestManager(store, cfg.Prefix),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	onexit.Register(func() { w.Shutdown(context.Background()) })
	go w.loop()
	return w
}

// Sink returns the DeltaSink function to register with Engine.AddDeltaSink.
func (w *SegmentWriter) Sink() DeltaSink {
	return w.handle
}

func (w *SegmentWriter) handle(delta crdt.ReplicationDelta) {
	encoded, err := EncodeDelta(delta)
	if err != nil {
		// malformed in-memory state would be a programming error, not a
		// transient condition; drop it rather than wedge the write path.
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, encoded)
	ts := delta.Causal.Counter
	if !w.hasPending || ts < w.pendingMin {
		w.pendingMin = ts
	}
	if !w.hasPending || ts > w.pendingMax {
		w.pendingMax = ts
	}
	w.hasPending = true
}

func (w *SegmentWriter) loop() {
	defer close(w.stopped)
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			_ = w.flush(context.Background())
			return
		case <-ticker.C:
			_ = w.flush(context.Background())
		}
	}
}

func (w *SegmentWriter) flush(ctx context.Context) error {
	w.mu.Lock()
	deltas := w.pending
	minTs, maxTs := w.pendingMin, w.pendingMax
	w.pending = nil
	w.hasPending = false
	w.mu.Unlock()

	if len(deltas) == 0 {
		return nil
	}

	seg := persist.Segment{
		Header: persist.SegmentHeader{
			Version:     1,
			Compression: w.cfg.Compression,
			Count:       uint32(len(deltas)),
			MinTs:       minTs,
			MaxTs:       maxTs,
		},
		Deltas: deltas,
	}
	encoded, err := persist.EncodeSegment(seg)
	if err != nil {
		return err
	}

	objectKey := w.segmentKey()
	if err := w.store.Put(ctx, objectKey, encoded); err != nil {
		return err
	}

	info := persist.SegmentInfo{
		ID:        uuid.NewString(),
		ObjectKey: objectKey,
		SizeBytes: int64(len(encoded)),
		MinTs:     minTs,
		MaxTs:     maxTs,
	}
	next := w.mm.Current()
	next.Version = w.mm.NextVersion()
	next.Segments = append(append([]persist.SegmentInfo{}, next.Segments...), info)
	return w.mm.Publish(ctx, next)
}

func (w *SegmentWriter) segmentKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.segmentSeq++
	seq := w.segmentSeq
	prefix := "segments/" + uuid.NewString()[:8] + "-" + strconv.FormatUint(seq, 10)
	if w.cfg.Prefix == "" {
		return prefix
	}
	return w.cfg.Prefix + "/" + prefix
}

// Shutdown flushes any buffered deltas and stops the loop. Safe to call
// multiple times.
func (w *SegmentWriter) Shutdown(ctx context.Context) {
	w.onceStop.Do(func() {
		close(w.stopCh)
	})
	<-w.stopped
}
