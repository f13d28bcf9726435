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

import (
	"encoding/binary"
	"math"
)

const (
	// pageSize is the size of a WebAssembly page in bytes (64KiB).
	pageSize = 65536
	// maxPages is the implementation ceiling on a memory's page count when
	// its declared type carries no explicit maximum.
	maxPages = uint32(1 << 15)
)

// Memory is a linear memory instance: a resizable byte buffer grown in
// whole pages.
// https://webassembly.github.io/spec/core/exec/runtime.html#memory-instances
type Memory struct {
	Limits Limits
	data   []byte
}

// NewMemory allocates a zeroed Memory with memType.Limits.Min initial pages.
func NewMemory(memType MemoryType) *Memory {
	return &Memory{
		Limits: memType.Limits,
		data:   make([]byte, uint64(memType.Limits.Min)*pageSize),
	}
}

// Grow adds n pages if the result does not exceed the declared (or
// implementation) maximum. It returns the previous page count, or -1 if
// the memory is left unchanged.
func (m *Memory) Grow(n int32) int32 {
	if n < 0 {
		return -1
	}
	current := m.Size()
	max := maxPages
	if m.Limits.Max != nil {
		max = *m.Limits.Max
	}
	if uint64(current)+uint64(n) > uint64(max) {
		return -1
	}
	m.data = append(m.data, make([]byte, uint64(n)*pageSize)...)
	return current
}

// Size returns the memory's size in pages.
func (m *Memory) Size() int32 {
	return int32(len(m.data) / pageSize)
}

func (m *Memory) bytesSize() uint64 {
	return uint64(len(m.data))
}

func (m *Memory) bounds(effectiveAddr, width uint64) bool {
	return effectiveAddr+width <= m.bytesSize()
}

// Set writes values into memory at addr+offset. It fails with a
// TrapOutOfBoundsMemoryAccess if the write exceeds the buffer.
func (m *Memory) Set(addr, offset uint32, values []byte) error {
	eff := uint64(addr) + uint64(offset)
	if !m.bounds(eff, uint64(len(values))) {
		return newTrap(TrapOutOfBoundsMemoryAccess, "memory write out of bounds")
	}
	copy(m.data[eff:], values)
	return nil
}

// Get reads length bytes from memory at addr+offset.
func (m *Memory) Get(addr, offset, length uint32) ([]byte, error) {
	eff := uint64(addr) + uint64(offset)
	if !m.bounds(eff, uint64(length)) {
		return nil, newTrap(TrapOutOfBoundsMemoryAccess, "memory read out of bounds")
	}
	return m.data[eff : eff+uint64(length)], nil
}

// Init copies n bytes from content[srcOffset:] into memory[destOffset:],
// used to apply an active data segment at instantiation.
func (m *Memory) Init(n, srcOffset, destOffset uint32, content []byte) error {
	if uint64(srcOffset)+uint64(n) > uint64(len(content)) ||
		!m.bounds(uint64(destOffset), uint64(n)) {
		return newTrap(TrapOutOfBoundsMemoryAccess, "data segment out of bounds")
	}
	copy(m.data[destOffset:destOffset+n], content[srcOffset:srcOffset+n])
	return nil
}

func (m *Memory) readAt(effAddr, width uint64) ([]byte, error) {
	if !m.bounds(effAddr, width) {
		return nil, newTrap(TrapOutOfBoundsMemoryAccess, "memory load out of bounds")
	}
	return m.data[effAddr : effAddr+width], nil
}

func (m *Memory) loadU8(addr, offset uint32) (uint8, error) {
	b, err := m.readAt(uint64(addr)+uint64(offset), 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *Memory) loadU16(addr, offset uint32) (uint16, error) {
	b, err := m.readAt(uint64(addr)+uint64(offset), 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *Memory) loadU32(addr, offset uint32) (uint32, error) {
	b, err := m.readAt(uint64(addr)+uint64(offset), 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) loadU64(addr, offset uint32) (uint64, error) {
	b, err := m.readAt(uint64(addr)+uint64(offset), 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *Memory) storeU8(addr, offset uint32, v uint8) error {
	return m.Set(addr, offset, []byte{v})
}

func (m *Memory) storeU16(addr, offset uint32, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return m.Set(addr, offset, b[:])
}

func (m *Memory) storeU32(addr, offset uint32, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Set(addr, offset, b[:])
}

func (m *Memory) storeU64(addr, offset uint32, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.Set(addr, offset, b[:])
}

func (m *Memory) loadF32(addr, offset uint32) (float32, error) {
	v, err := m.loadU32(addr, offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (m *Memory) loadF64(addr, offset uint32) (float64, error) {
	v, err := m.loadU64(addr, offset)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (m *Memory) storeF32(addr, offset uint32, v float32) error {
	return m.storeU32(addr, offset, math.Float32bits(v))
}

func (m *Memory) storeF64(addr, offset uint32, v float64) error {
	return m.storeU64(addr, offset, math.Float64bits(v))
}
