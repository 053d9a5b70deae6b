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

import "os"

// Truncate deletes every WAL file in dir whose maximum entry CausalTs is
// <= safeTs, except the single most recent file (the writer's active
// segment, which must never be removed out from under it). File-
// granularity deletion is conservative: a file holding one entry above
// safeTs keeps every entry below it too, since segments + manifest are
// the only other record of those older entries' durability.
func Truncate(dir string, safeTs uint64) (deleted []string, err error) {
	names, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(names) <= 1 {
		return nil, nil
	}
	// never touch the last (active) file.
	for _, name := range names[:len(names)-1] {
		entries, _, rerr := replayFile(dir, name)
		if rerr != nil {
			return deleted, rerr
		}
		if MaxEntryTs(entries) <= safeTs {
			if derr := os.Remove(segmentPath(dir, name)); derr != nil {
				return deleted, derr
			}
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}
