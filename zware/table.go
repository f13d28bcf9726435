// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zware

// Table is a resizable array of function references.
type Table struct {
	Type     TableType
	elements []int32
}

// NewTable allocates a Table filled with NullReference up to its minimum
// size.
func NewTable(tt TableType) *Table {
	elements := make([]int32, tt.Limits.Min)
	for i := range elements {
		elements[i] = NullReference
	}
	return &Table{Type: tt, elements: elements}
}

// Get returns the element (a function handle, or NullReference) at index.
func (t *Table) Get(index int32) (int32, error) {
	if index < 0 || index >= int32(len(t.elements)) {
		return 0, newTrap(TrapOutOfBoundsTableAccess, "table index out of bounds")
	}
	return t.elements[index], nil
}

// Set places a function handle at index.
func (t *Table) Set(index, value int32) error {
	if index < 0 || index >= int32(len(t.elements)) {
		return newTrap(TrapOutOfBoundsTableAccess, "table index out of bounds")
	}
	t.elements[index] = value
	return nil
}

// Size returns the table's current element count.
func (t *Table) Size() int32 {
	return int32(len(t.elements))
}

// Grow increases the table by n elements, initializing them to val. It
// returns the previous size, or -1 if growth would exceed the declared max.
func (t *Table) Grow(n, val int32) int32 {
	if n < 0 {
		return -1
	}
	previous := t.Size()
	if t.Type.Limits.Max != nil && uint32(previous)+uint32(n) > *t.Type.Limits.Max {
		return -1
	}
	for range n {
		t.elements = append(t.elements, val)
	}
	return previous
}

// InitFromSlice copies funcIndexes into the table starting at startIndex,
// used to apply an active element segment at instantiation.
func (t *Table) InitFromSlice(startIndex int32, funcIndexes []int32) error {
	if startIndex < 0 ||
		uint64(uint32(startIndex))+uint64(uint32(len(funcIndexes))) > uint64(t.Size()) {
		return newTrap(TrapOutOfBoundsTableAccess, "element segment out of bounds")
	}
	copy(t.elements[startIndex:], funcIndexes)
	return nil
}
