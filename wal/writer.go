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
	"context"
	"os"
	"sync"
	"time"
)

type appendRequest struct {
	entry Entry
	done  chan error
}

// Writer is the single writer for one WAL directory: every append goes
// through this one goroutine's batching loop, matching the engine's
// logical single-writer-per-WAL scheduling model. Concurrent callers
// queue on appendCh; the loop owns the active file exclusively, the same
// "one mutex guards the delta" shape as the teacher's storage shard
// writer.
type Writer struct {
	cfg Config

	mu      sync.Mutex // guards file/seq/size against concurrent rotate+Close
	file    *os.File
	seq     uint64
	size    int64

	appendCh chan appendRequest
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewWriter opens (creating if necessary) cfg.Dir and starts the group
// commit loop on a fresh rotated segment.
func NewWriter(cfg Config) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	w := &Writer{
		cfg:      cfg,
		appendCh: make(chan appendRequest, 1024),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	go w.loop()
	return w, nil
}

func (w *Writer) rotate() error {
	if w.file != nil {
		w.file.Close()
	}
	seq, err := nextSequence(w.cfg.Dir)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(segmentPath(w.cfg.Dir, fileName(seq)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.seq = seq
	w.size = 0
	return nil
}

// Append enqueues entry for the next group commit batch and blocks until
// that batch has been appended (and, in FsyncAlways mode, fsynced) or has
// failed, in which case every entry in the batch is reported as failed.
func (w *Writer) Append(ctx context.Context, entry Entry) error {
	req := appendRequest{entry: entry, done: make(chan error, 1)}
	select {
	case w.appendCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopCh:
		return errWriterClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer close(w.stopped)
	maxWait := time.Duration(w.cfg.GroupCommitMaxWaitMs) * time.Millisecond
	if maxWait <= 0 {
		maxWait = time.Millisecond
	}

	var everySecond *time.Ticker
	if w.cfg.FsyncPolicy == FsyncEverySecond {
		interval := time.Duration(w.cfg.FsyncIntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		everySecond = time.NewTicker(interval)
		defer everySecond.Stop()
	}

	for {
		select {
		case <-w.stopCh:
			w.drainRemaining()
			return
		case first := <-w.appendCh:
			batch := []appendRequest{first}
			timer := time.NewTimer(maxWait)
		collect:
			for len(batch) < w.cfg.GroupCommitMaxEntries {
				select {
				case req := <-w.appendCh:
					batch = append(batch, req)
				case <-timer.C:
					break collect
				case <-w.stopCh:
					timer.Stop()
					w.commit(batch)
					return
				}
			}
			timer.Stop()
			w.commit(batch)
		case <-func() <-chan time.Time {
			if everySecond == nil {
				return nil
			}
			return everySecond.C
		}():
			w.mu.Lock()
			_ = w.file.Sync()
			w.mu.Unlock()
		}
	}
}

// drainRemaining commits any requests still queued at shutdown time, so a
// caller blocked in Append is never left waiting forever on Close.
func (w *Writer) drainRemaining() {
	var batch []appendRequest
	for {
		select {
		case req := <-w.appendCh:
			batch = append(batch, req)
		default:
			if len(batch) > 0 {
				w.commit(batch)
			}
			return
		}
	}
}

func (w *Writer) commit(batch []appendRequest) {
	w.mu.Lock()
	var buf []byte
	for _, req := range batch {
		buf = Encode(buf, req.entry)
	}
	n, werr := w.file.Write(buf)
	w.size += int64(n)

	var fsyncErr error
	if werr == nil && w.cfg.FsyncPolicy == FsyncAlways {
		fsyncErr = w.file.Sync()
	}
	if werr == nil && w.size >= w.cfg.SegmentMaxBytes {
		_ = w.file.Sync()
		_ = w.rotate()
	}
	w.mu.Unlock()

	var ackErr error
	if werr != nil {
		ackErr = &AppendError{File: fileName(w.seq), Err: werr}
	} else if fsyncErr != nil {
		ackErr = &FsyncFailedError{File: fileName(w.seq), Err: fsyncErr}
	}
	for _, req := range batch {
		req.done <- ackErr
	}
}

// Close drains any in-flight batch, finalizes the active file, and stops
// the writer. Safe to call once.
func (w *Writer) Close() error {
	close(w.stopCh)
	<-w.stopped
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Sync()
		return w.file.Close()
	}
	return nil
}

type writerClosedError struct{}

func (writerClosedError) Error() string { return "wal: writer closed" }

var errWriterClosed = writerClosedError{}
