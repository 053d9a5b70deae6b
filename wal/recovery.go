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
	"bufio"
	"errors"
	"io"
	"os"
)

// replayFile decodes every valid entry from name in order. It returns the
// entries read, whether a torn write was hit (the torn entry and
// anything after it are not returned), and any unexpected error.
func replayFile(dir, name string) (entries []Entry, torn bool, err error) {
	f, ferr := os.Open(segmentPath(dir, name))
	if ferr != nil {
		return nil, false, ferr
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		e, derr := Decode(r)
		if derr == nil {
			entries = append(entries, e)
			continue
		}
		if errors.Is(derr, io.EOF) {
			return entries, false, nil
		}
		if errors.Is(derr, ErrTornEntry) {
			return entries, true, nil
		}
		return entries, false, derr
	}
}

// Replay lists every WAL file in dir in write order and decodes entries
// until EOF or a torn write. A torn write in file N — which can only be
// the crash-time tail, since earlier files were fully durable before
// rotation — stops the scan entirely: files after N, if any exist, were
// never reached by the writer that produced this on-disk state in a real
// crash, so nothing after them can be trusted either.
func Replay(dir string) ([]Entry, error) {
	names, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	var all []Entry
	for _, name := range names {
		entries, torn, rerr := replayFile(dir, name)
		if rerr != nil {
			return all, rerr
		}
		all = append(all, entries...)
		if torn {
			break
		}
	}
	return all, nil
}

// MaxEntryTs returns the highest CausalTs among entries, or 0 if empty.
func MaxEntryTs(entries []Entry) uint64 {
	var max uint64
	for _, e := range entries {
		if e.CausalTs > max {
			max = e.CausalTs
		}
	}
	return max
}
