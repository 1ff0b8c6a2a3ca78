package store

import (
	"encoding/binary"
	"math"

	"github.com/zenovm/zeno/internal/wasm"
)

// MemoryInstance represents a memory instance in a store, and implements
// api.Memory. The buffer length is always a whole number of 65536-byte
// pages and never exceeds Max pages.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
type MemoryInstance struct {
	Owner    Address
	Buffer   []byte
	Min, Max uint32
}

// NewMemoryInstance returns a memory of min pages, growable to max pages.
func NewMemoryInstance(owner Address, min, max uint32) *MemoryInstance {
	return &MemoryInstance{
		Owner:  owner,
		Buffer: make([]byte, wasm.MemoryPagesToBytesNum(min)),
		Min:    min,
		Max:    max,
	}
}

// Size implements api.Memory Size.
func (m *MemoryInstance) Size() uint32 { return uint32(len(m.Buffer)) }

// PageSize returns the current buffer size in pages.
func (m *MemoryInstance) PageSize() uint32 {
	return uint32(uint64(len(m.Buffer)) >> wasm.MemoryPageSizeInBits)
}

// Grow extends the buffer by newPages pages, returning the prior size in
// pages, or 0xffffffff (-1 as i32) when growth would exceed Max.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
func (m *MemoryInstance) Grow(newPages uint32) uint32 {
	currentPages := m.PageSize()
	if newPages == 0 {
		return currentPages
	}
	if uint64(currentPages)+uint64(newPages) > uint64(m.Max) {
		return math.MaxUint32
	}
	m.Buffer = append(m.Buffer, make([]byte, wasm.MemoryPagesToBytesNum(newPages))...)
	return currentPages
}

// hasSize returns true if the buffer covers sizeInBytes at offset. uint64
// arithmetic prevents overflow on the add.
func (m *MemoryInstance) hasSize(offset uint32, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= uint64(len(m.Buffer))
}

// ReadByte implements api.Memory ReadByte.
func (m *MemoryInstance) ReadByte(offset uint32) (byte, bool) {
	if offset >= m.Size() {
		return 0, false
	}
	return m.Buffer[offset], true
}

// ReadUint32Le implements api.Memory ReadUint32Le.
func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasSize(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset : offset+4]), true
}

// ReadUint64Le implements api.Memory ReadUint64Le.
func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasSize(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset : offset+8]), true
}

// ReadFloat32Le implements api.Memory ReadFloat32Le.
func (m *MemoryInstance) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

// ReadFloat64Le implements api.Memory ReadFloat64Le.
func (m *MemoryInstance) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

// Read implements api.Memory Read.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.hasSize(offset, byteCount) {
		return nil, false
	}
	return m.Buffer[offset : offset+byteCount], true
}

// WriteByte implements api.Memory WriteByte.
func (m *MemoryInstance) WriteByte(offset uint32, v byte) bool {
	if offset >= m.Size() {
		return false
	}
	m.Buffer[offset] = v
	return true
}

// WriteUint32Le implements api.Memory WriteUint32Le.
func (m *MemoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.hasSize(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

// WriteUint64Le implements api.Memory WriteUint64Le.
func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasSize(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// Write implements api.Memory Write.
func (m *MemoryInstance) Write(offset uint32, val []byte) bool {
	if !m.hasSize(offset, uint32(len(val))) {
		return false
	}
	copy(m.Buffer[offset:], val)
	return true
}
