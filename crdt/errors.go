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
package crdt

import "fmt"

// TypeMismatchError is returned when a merge is attempted between two
// CRDT variants that are not the same concrete type, and the register
// fallback was not requested. Making the conflict explicit keeps a
// caller from silently discarding one side's data.
type TypeMismatchError struct {
	SelfType  string
	OtherType string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("crdt: type mismatch: cannot merge %s with %s", e.SelfType, e.OtherType)
}
