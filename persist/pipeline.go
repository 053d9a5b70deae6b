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
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dc0d/onexit"
	"github.com/google/uuid"

	"github.com/nerdsane/kvdst/objectstore"
	"github.com/nerdsane/kvdst/simclock"
)

// PipelineConfig bundles the write buffer and manifest-key configuration
// a Pipeline needs to flush batches into segments.
type PipelineConfig struct {
	Prefix      string
	WriteBuffer WriteBufferConfig
	Compression Compression
	PollInterval time.Duration // how often the flush loop checks ShouldFlush
}

// Pipeline is the write side of the streaming persistence design: a
// WriteBuffer feeding periodic segment flushes published through a
// ManifestManager. One Pipeline owns one manifest prefix; shards enqueue
// deltas, the background loop does the rest.
type Pipeline struct {
	cfg     PipelineConfig
	store   objectstore.Store
	clock   simclock.Clock
	buffer  *WriteBuffer
	mm      *ManifestManager

	stopCh  chan struct{}
	stopped chan struct{}
	onceStop sync.Once

	mu        sync.Mutex
	segmentSeq uint64
}

// NewPipeline wires a Pipeline over store and registers its shutdown
// with onexit, matching the teacher's InitSettings pattern of using
// onexit.Register for process-exit cleanup (storage/settings.go).
func NewPipeline(store objectstore.Store, clock simclock.Clock, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		buffer:  NewWriteBuffer(cfg.WriteBuffer, clock),
		mm:      NewManifestManager(store, cfg.Prefix),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	onexit.Register(func() { p.Shutdown(context.Background()) })
	go p.loop()
	return p
}

// Enqueue hands one encoded delta to the write buffer, returning
// *BackpressureError if the backlog is already at threshold.
func (p *Pipeline) Enqueue(delta []byte) error {
	return p.buffer.Enqueue(delta)
}

// FlushNow forces an immediate flush regardless of trigger state,
// corresponding to the design's external flush_now() call.
func (p *Pipeline) FlushNow(ctx context.Context) error {
	return p.flush(ctx)
}

func (p *Pipeline) loop() {
	defer close(p.stopped)
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			_ = p.flush(context.Background())
			return
		case <-ticker.C:
			if p.buffer.ShouldFlush() {
				_ = p.flush(context.Background())
			}
		}
	}
}

// flush drains the buffer, builds a segment, puts it, and atomically
// advances the manifest. On put failure the batch is re-enqueued at the
// head so no delta is lost; on rename failure the segment object is
// leaked but harmless, since recovery keys off the manifest, not off
// which segment objects merely exist.
func (p *Pipeline) flush(ctx context.Context) error {
	deltas := p.buffer.Drain()
	if len(deltas) == 0 {
		return nil
	}

	// deltas are opaque to persist; min_ts/max_ts are left zero here.
	// A caller that needs them tracked precisely (the kv engine does, via
	// SegmentWriter in package kv) builds the SegmentInfo itself instead
	// of going through this generic flush path.
	seg := Segment{
		Header: SegmentHeader{
			Version:     1,
			Compression: p.cfg.Compression,
			Count:       uint32(len(deltas)),
		},
		Deltas: deltas,
	}
	encoded, err := EncodeSegment(seg)
	if err != nil {
		p.buffer.Requeue(deltas)
		return err
	}

	objectKey := p.segmentKey()
	if err := p.store.Put(ctx, objectKey, encoded); err != nil {
		p.buffer.Requeue(deltas)
		return err
	}

	info := SegmentInfo{
		ID:        uuid.NewString(),
		ObjectKey: objectKey,
		SizeBytes: int64(len(encoded)),
	}
	next := p.mm.Current()
	next.Version = p.mm.NextVersion()
	next.Segments = append(append([]SegmentInfo{}, next.Segments...), info)
	if err := p.mm.Publish(ctx, next); err != nil {
		// segment object is now leaked (never referenced by a manifest);
		// harmless per the design, left for a future compaction/GC pass.
		return err
	}
	return nil
}

func (p *Pipeline) segmentKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segmentSeq++
	seq := p.segmentSeq
	if p.cfg.Prefix == "" {
		return segmentKeyFor(seq)
	}
	return p.cfg.Prefix + "/" + segmentKeyFor(seq)
}

func segmentKeyFor(seq uint64) string {
	return "segments/" + uuid.NewString()[:8] + "-" + strconv.FormatUint(seq, 10)
}

// Shutdown drains the write buffer with one final flush and stops the
// background loop. Safe to call multiple times.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.onceStop.Do(func() {
		close(p.stopCh)
	})
	<-p.stopped
}
