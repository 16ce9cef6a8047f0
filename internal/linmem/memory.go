// Package linmem is a page-granular linear memory shared between a numeric
// module and its host. Growing the memory reallocates the backing slice, so a
// slice obtained from Bytes before a grow is detached and must not be read.
package linmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	PageSize = 64 * 1024
	align    = 8
)

var (
	ErrOutOfMemory = errors.New("linear memory exhausted")
	ErrBadPointer  = errors.New("pointer was not allocated")
)

type block struct {
	off  uint32
	size uint32
}

type Memory struct {
	buf      []byte
	maxPages int
	free     []block
	used     map[uint32]uint32
	grows    int
}

// New reserves initialPages and allows growth up to maxPages. Offset 0 is
// never handed out so a zero pointer always means "no region".
func New(initialPages, maxPages int) *Memory {
	if initialPages < 1 {
		initialPages = 1
	}
	if maxPages < initialPages {
		maxPages = initialPages
	}
	m := &Memory{
		buf:      make([]byte, initialPages*PageSize),
		maxPages: maxPages,
		used:     make(map[uint32]uint32),
	}
	m.free = []block{{off: align, size: uint32(len(m.buf)) - align}}
	return m
}

func (m *Memory) Bytes() []byte {
	return m.buf
}

func (m *Memory) Size() int {
	return len(m.buf)
}

func (m *Memory) Pages() int {
	return len(m.buf) / PageSize
}

// Grows reports how many times the backing buffer has been reallocated.
func (m *Memory) Grows() int {
	return m.grows
}

func (m *Memory) InUse() int {
	total := 0
	for _, size := range m.used {
		total += int(size)
	}
	return total
}

// Alloc returns an 8-byte aligned region of n bytes using first fit, growing
// the memory when no free block is large enough.
func (m *Memory) Alloc(n int) (uint32, error) {
	if n < 0 {
		return 0, fmt.Errorf("alloc size must be >= 0, got %d", n)
	}
	size := roundUp(uint32(n))
	if size == 0 {
		size = align
	}
	if ptr, ok := m.take(size); ok {
		return ptr, nil
	}
	if err := m.grow(size); err != nil {
		return 0, err
	}
	ptr, ok := m.take(size)
	if !ok {
		return 0, fmt.Errorf("%w: no block of %d bytes after grow", ErrOutOfMemory, size)
	}
	return ptr, nil
}

func (m *Memory) Free(ptr uint32) error {
	size, ok := m.used[ptr]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadPointer, ptr)
	}
	delete(m.used, ptr)
	m.release(block{off: ptr, size: size})
	return nil
}

func (m *Memory) PutFloat64s(ptr uint32, values []float64) {
	for i, v := range values {
		off := int(ptr) + i*8
		binary.LittleEndian.PutUint64(m.buf[off:off+8], math.Float64bits(v))
	}
}

// Float64s copies n values starting at ptr.
func (m *Memory) Float64s(ptr uint32, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		off := int(ptr) + i*8
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(m.buf[off : off+8]))
	}
	return out
}

func (m *Memory) take(size uint32) (uint32, bool) {
	for i, b := range m.free {
		if b.size < size {
			continue
		}
		ptr := b.off
		if b.size == size {
			m.free = append(m.free[:i], m.free[i+1:]...)
		} else {
			m.free[i] = block{off: b.off + size, size: b.size - size}
		}
		m.used[ptr] = size
		return ptr, true
	}
	return 0, false
}

func (m *Memory) grow(size uint32) error {
	tail := uint32(0)
	if n := len(m.free); n > 0 && m.free[n-1].off+m.free[n-1].size == uint32(len(m.buf)) {
		tail = m.free[n-1].size
	}
	need := int(size - tail)
	pages := (need + PageSize - 1) / PageSize
	if m.Pages()+pages > m.maxPages {
		return fmt.Errorf("%w: need %d more pages, limit %d", ErrOutOfMemory, pages, m.maxPages)
	}
	oldLen := uint32(len(m.buf))
	next := make([]byte, len(m.buf)+pages*PageSize)
	copy(next, m.buf)
	m.buf = next
	m.grows++
	m.release(block{off: oldLen, size: uint32(pages * PageSize)})
	return nil
}

// release returns b to the free list, merging with adjacent blocks.
func (m *Memory) release(b block) {
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].off > b.off })
	m.free = append(m.free, block{})
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = b

	if i+1 < len(m.free) && m.free[i].off+m.free[i].size == m.free[i+1].off {
		m.free[i].size += m.free[i+1].size
		m.free = append(m.free[:i+1], m.free[i+2:]...)
	}
	if i > 0 && m.free[i-1].off+m.free[i-1].size == m.free[i].off {
		m.free[i-1].size += m.free[i].size
		m.free = append(m.free[:i], m.free[i+1:]...)
	}
}

func roundUp(n uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
