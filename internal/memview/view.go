// Package memview reads float64 results that a numeric module left in its
// linear memory without copying them out first.
//
// A Vector never caches the buffer: every access asks the provider for the
// current one, because an allocation inside the module may have replaced it.
// A Vector is still only meaningful until the next call into the module that
// produced it; callers copy what they need before making that call.
package memview

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float64Size = 8

// Provider returns the module's current linear memory.
type Provider func() []byte

type Vector struct {
	provider Provider
	ptr      uint32
	n        int
}

// View describes n float64 values at byte offset ptr. It panics if the region
// does not lie inside the buffer the provider returns right now.
func View(provider Provider, ptr uint32, n int) Vector {
	if provider == nil {
		panic("memview: nil provider")
	}
	if n < 0 {
		panic(fmt.Sprintf("memview: negative length %d", n))
	}
	v := Vector{provider: provider, ptr: ptr, n: n}
	v.bytes()
	return v
}

func (v Vector) Len() int {
	return v.n
}

func (v Vector) At(i int) float64 {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("memview: index %d out of range [0,%d)", i, v.n))
	}
	region := v.bytes()
	off := i * float64Size
	return math.Float64frombits(binary.LittleEndian.Uint64(region[off : off+float64Size]))
}

// CopyTo copies min(len(dst), Len()) values and returns the count.
func (v Vector) CopyTo(dst []float64) int {
	n := min(len(dst), v.n)
	region := v.bytes()
	for i := 0; i < n; i++ {
		off := i * float64Size
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(region[off : off+float64Size]))
	}
	return n
}

func (v Vector) Floats() []float64 {
	out := make([]float64, v.n)
	v.CopyTo(out)
	return out
}

func (v Vector) bytes() []byte {
	buf := v.provider()
	start := int(v.ptr)
	end := start + v.n*float64Size
	if end > len(buf) || start > len(buf) {
		panic(fmt.Sprintf("memview: region [%d,%d) outside buffer of %d bytes", start, end, len(buf)))
	}
	return buf[start:end:end]
}
