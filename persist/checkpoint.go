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
	"bytes"
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/nerdsane/kvdst/objectstore"
)

// SnapshotCodec serializes and deserializes the engine's full state.
// Package persist never looks inside the bytes; the kv engine supplies
// them as an opaque blob (typically one encoded ShardReplicaState per
// shard).
type SnapshotCodec interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// WriteCheckpoint serializes snapshot, xz-compresses it, and puts it to
// the object store under "{prefix}/checkpoints/{id}", returning the
// CheckpointInfo a manifest should reference.
func WriteCheckpoint(ctx context.Context, store objectstore.Store, prefix string, snapshot SnapshotCodec, asOfTs uint64) (CheckpointInfo, error) {
	raw, err := snapshot.Marshal()
	if err != nil {
		return CheckpointInfo{}, err
	}

	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	if err != nil {
		return CheckpointInfo{}, err
	}
	if _, err := w.Write(raw); err != nil {
		return CheckpointInfo{}, err
	}
	if err := w.Close(); err != nil {
		return CheckpointInfo{}, err
	}

	id := uuid.NewString()
	objectKey := checkpointKey(prefix, id)
	if err := store.Put(ctx, objectKey, compressed.Bytes()); err != nil {
		return CheckpointInfo{}, err
	}
	return CheckpointInfo{ID: id, ObjectKey: objectKey, AsOfTs: asOfTs}, nil
}

// LoadCheckpoint fetches and xz-decompresses the checkpoint named by
// info, then unmarshals it into snapshot.
func LoadCheckpoint(ctx context.Context, store objectstore.Store, info CheckpointInfo, snapshot SnapshotCodec) error {
	compressed, err := store.Get(ctx, info.ObjectKey)
	if err != nil {
		return err
	}
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return snapshot.Unmarshal(raw)
}

func checkpointKey(prefix, id string) string {
	if prefix == "" {
		return "checkpoints/" + id
	}
	return prefix + "/checkpoints/" + id
}
