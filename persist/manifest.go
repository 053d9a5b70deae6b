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
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/nerdsane/kvdst/objectstore"
)

// SegmentInfo is one manifest entry describing a live segment object.
type SegmentInfo struct {
	ID        string `json:"id"`
	ObjectKey string `json:"object_key"`
	SizeBytes int64  `json:"size_bytes"`
	MinTs     uint64 `json:"min_ts"`
	MaxTs     uint64 `json:"max_ts"`
}

// CheckpointInfo points at a full-state snapshot and the causal
// timestamp it was taken as of.
type CheckpointInfo struct {
	ID        string `json:"id"`
	ObjectKey string `json:"object_key"`
	AsOfTs    uint64 `json:"as_of_ts"`
}

// Manifest is the root of recovery: the ordered list of live segments
// plus an optional checkpoint pointer. Self-describing and versioned so
// an old reader can at least detect a manifest from a newer version.
type Manifest struct {
	Version    uint64           `json:"version"`
	Checkpoint *CheckpointInfo  `json:"checkpoint,omitempty"`
	Segments   []SegmentInfo    `json:"segments"`
}

func encodeManifest(m Manifest) ([]byte, error) { return json.Marshal(m) }

func decodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &ManifestCorruptionError{Reason: err.Error()}
	}
	return m, nil
}

// ManifestCurrentKey is the fixed location every manager publishes the current
// manifest to, relative to a deployment's prefix.
const ManifestCurrentKey = "manifest/current"
const manifestNextKeyPrefix = "manifest/next-"

// ManifestManager serializes every manifest publication through
// put(tmp) -> rename(tmp, current), so concurrent flush/checkpoint/
// compaction callers never race on the commit point. This is "all
// writes to the manifest go through a single manager that serializes
// rename" from the concurrency model.
type ManifestManager struct {
	store  objectstore.Store
	prefix string

	mu      sync.Mutex
	current Manifest
	loaded  bool
}

// NewManifestManager returns a manager bound to store under prefix
// (typically "{dbprefix}").
func NewManifestManager(store objectstore.Store, prefix string) *ManifestManager {
	return &ManifestManager{store: store, prefix: prefix}
}

func (m *ManifestManager) key(suffix string) string {
	if m.prefix == "" {
		return suffix
	}
	return m.prefix + "/" + suffix
}

// Load reads the current published manifest, if any. NotFoundError from
// the store means no manifest has ever been published (a fresh engine).
func (m *ManifestManager) Load(ctx context.Context) (Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.store.Get(ctx, m.key(ManifestCurrentKey))
	if err != nil {
		return Manifest{}, err
	}
	manifest, derr := decodeManifest(data)
	if derr != nil {
		return Manifest{}, derr
	}
	m.current = manifest
	m.loaded = true
	return manifest, nil
}

// Publish atomically swaps in next as the current manifest, enforcing
// strict version monotonicity (invariant 6). The write is put(tmp) then
// rename(tmp, current); a rename failure leaves the previous manifest as
// current and returns an error, with the tmp object merely unreclaimed.
func (m *ManifestManager) Publish(ctx context.Context, next Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded && next.Version <= m.current.Version {
		return &ManifestCorruptionError{Reason: "manifest version did not increase"}
	}

	data, err := encodeManifest(next)
	if err != nil {
		return err
	}
	tmpKey := m.key(manifestNextKeyPrefix + uuid.NewString())
	if err := m.store.Put(ctx, tmpKey, data); err != nil {
		return err
	}
	if err := m.store.Rename(ctx, tmpKey, m.key(ManifestCurrentKey)); err != nil {
		return err
	}
	m.current = next
	m.loaded = true
	return nil
}

// Current returns the last manifest this manager loaded or published.
func (m *ManifestManager) Current() Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NextVersion returns the version number a new manifest must use to
// satisfy monotonicity against whatever this manager currently holds.
func (m *ManifestManager) NextVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Version + 1
}
