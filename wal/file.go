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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const filePrefix = "wal-"
const fileSuffix = ".log"

// fileName returns the zero-padded, lexicographically sortable segment
// file name for sequence n, e.g. fileName(1) == "wal-00000001.log".
func fileName(n uint64) string {
	return fmt.Sprintf("%s%08d%s", filePrefix, n, fileSuffix)
}

// sequenceOf parses the sequence number out of a WAL file name; ok is
// false for anything not matching the wal-NNNNNNNN.log pattern.
func sequenceOf(name string) (n uint64, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// listSegments returns the WAL file names under dir in write order
// (ascending sequence, which is also lexicographic string order).
func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := sequenceOf(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// nextSequence returns the sequence number to use for a freshly rotated
// segment, one past the highest existing sequence in dir.
func nextSequence(dir string) (uint64, error) {
	names, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 1, nil
	}
	last, _ := sequenceOf(names[len(names)-1])
	return last + 1, nil
}

func segmentPath(dir, name string) string {
	return filepath.Join(dir, name)
}
