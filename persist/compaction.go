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

import "sort"

// DeltaView is the minimum a compaction pass needs to know about an
// encoded delta: its key (for last-write-wins grouping), its causal
// timestamp (for picking the winner and for TTL), and whether it is a
// tombstone (dropped once past tombstoneTTL).
type DeltaView struct {
	Key       string
	CausalTs  uint64
	Tombstone bool
}

// DeltaInspector decodes the key/timestamp/tombstone-ness of an encoded
// delta without fully deserializing its value; the kv package supplies
// this since persist never interprets delta payloads itself.
type DeltaInspector func(raw []byte) (DeltaView, error)

// CompactConfig names the parameters driving a compaction pass.
type CompactConfig struct {
	NowTs             uint64
	TombstoneTTL      uint64 // same unit as CausalTs; entries older than NowTs-TombstoneTTL are dropped once tombstoned
	TargetSegmentSize int64  // approximate encoded bytes per output segment
	Compression       Compression
}

// Compact merges segments (given in ascending flush order — oldest
// first) by key, last-write-wins by causal timestamp, drops tombstones
// once they exceed TombstoneTTL, and returns one or more new segments
// each holding roughly TargetSegmentSize bytes of surviving deltas.
//
// Invariant: replaying the output segments reproduces the same
// per-key winner that replaying the input segments in order would have
// produced (scenario E) — this function never changes "what wins", only
// how many bytes represent it.
func Compact(segments []Segment, inspect DeltaInspector, cfg CompactConfig) ([]Segment, error) {
	type winner struct {
		raw  []byte
		view DeltaView
	}
	winners := map[string]winner{}
	var order []string // every distinct key; sorted below for deterministic output ordering

	for _, seg := range segments {
		for _, raw := range seg.Deltas {
			view, err := inspect(raw)
			if err != nil {
				return nil, err
			}
			existing, ok := winners[view.Key]
			if !ok {
				order = append(order, view.Key)
			}
			if !ok || view.CausalTs >= existing.view.CausalTs {
				winners[view.Key] = winner{raw: raw, view: view}
			}
		}
	}

	sort.Strings(order) // stable, content-addressed ordering across compaction runs with identical inputs

	var survivors [][]byte
	var survivorTs []uint64
	for _, key := range order {
		w := winners[key]
		if w.view.Tombstone && cfg.NowTs > w.view.CausalTs && cfg.NowTs-w.view.CausalTs > cfg.TombstoneTTL {
			continue
		}
		survivors = append(survivors, w.raw)
		survivorTs = append(survivorTs, w.view.CausalTs)
	}

	return chunkIntoSegments(survivors, survivorTs, cfg), nil
}

func chunkIntoSegments(deltas [][]byte, ts []uint64, cfg CompactConfig) []Segment {
	if len(deltas) == 0 {
		return nil
	}
	target := cfg.TargetSegmentSize
	if target <= 0 {
		target = 1 << 62 // effectively unbounded: one output segment
	}

	var segments []Segment
	var cur [][]byte
	var curSize int64
	var minTs, maxTs uint64
	haveRange := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		segments = append(segments, Segment{
			Header: SegmentHeader{
				Version:     1,
				Compression: cfg.Compression,
				Count:       uint32(len(cur)),
				MinTs:       minTs,
				MaxTs:       maxTs,
			},
			Deltas: cur,
		})
		cur = nil
		curSize = 0
		haveRange = false
	}

	for i, d := range deltas {
		if curSize > 0 && curSize+int64(len(d)) > target {
			flush()
		}
		cur = append(cur, d)
		curSize += int64(len(d))
		if !haveRange {
			minTs, maxTs = ts[i], ts[i]
			haveRange = true
		} else {
			if ts[i] < minTs {
				minTs = ts[i]
			}
			if ts[i] > maxTs {
				maxTs = ts[i]
			}
		}
	}
	flush()
	return segments
}
