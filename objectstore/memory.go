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
package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nerdsane/kvdst/simclock"
)

// Memory is an in-process Store backed by a map, for unit tests and as
// the base the Simulated store wraps for deterministic simulation
// testing.
type Memory struct {
	clock simclock.Clock

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory store. clock is used only to stamp
// Meta.CreatedAtMs; pass simclock.NewProduction() outside DST.
func NewMemory(clock simclock.Clock) *Memory {
	return &Memory{clock: clock, objects: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) Head(_ context.Context, key string) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return Meta{}, &NotFoundError{Key: key}
	}
	return Meta{Key: key, SizeBytes: int64(len(data)), CreatedAtMs: uint64(m.clock.Now())}, nil
}

func (m *Memory) List(_ context.Context, prefix string, _ string) (ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Meta
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Meta{Key: k, SizeBytes: int64(len(v)), CreatedAtMs: uint64(m.clock.Now())})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return ListResult{Objects: out}, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) Rename(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[from]
	if !ok {
		return &NotFoundError{Key: from}
	}
	m.objects[to] = data
	delete(m.objects, from)
	return nil
}
