package memview

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferWith(values ...float64) []byte {
	buf := make([]byte, 16+len(values)*8+16)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[16+i*8:], math.Float64bits(v))
	}
	return buf
}

func TestViewMatchesBufferBits(t *testing.T) {
	values := []float64{0, -0.0, 1.25, -3.5e-300, math.Inf(1), math.NaN(), math.MaxFloat64}
	buf := bufferWith(values...)
	provider := func() []byte { return buf }

	for length := 0; length <= len(values); length++ {
		v := View(provider, 16, length)
		require.Equal(t, length, v.Len())
		for i := 0; i < length; i++ {
			want := binary.LittleEndian.Uint64(buf[16+i*8:])
			assert.Equal(t, want, math.Float64bits(v.At(i)), "length=%d index=%d", length, i)
		}
	}
}

func TestViewReadsCurrentBuffer(t *testing.T) {
	first := bufferWith(1, 2)
	second := bufferWith(7, 8)
	current := first
	v := View(func() []byte { return current }, 16, 2)

	assert.Equal(t, 1.0, v.At(0))
	current = second
	assert.Equal(t, 7.0, v.At(0), "vector must not cache a detached buffer")
}

func TestFloatsCopiesOut(t *testing.T) {
	buf := bufferWith(4, 5, 6)
	v := View(func() []byte { return buf }, 16, 3)
	out := v.Floats()
	require.Equal(t, []float64{4, 5, 6}, out)

	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(9))
	assert.Equal(t, 4.0, out[0])
	assert.Equal(t, 9.0, v.At(0))
}

func TestCopyToShortDestination(t *testing.T) {
	buf := bufferWith(1, 2, 3)
	v := View(func() []byte { return buf }, 16, 3)
	dst := make([]float64, 2)
	assert.Equal(t, 2, v.CopyTo(dst))
	assert.Equal(t, []float64{1, 2}, dst)
}

func TestViewOutsideBufferPanics(t *testing.T) {
	buf := bufferWith(1)
	provider := func() []byte { return buf }
	assert.Panics(t, func() { View(provider, uint32(len(buf)-4), 1) })
	assert.Panics(t, func() { View(provider, 16, -1) })

	v := View(provider, 16, 1)
	assert.Panics(t, func() { v.At(1) })

	buf = buf[:8]
	assert.Panics(t, func() { v.At(0) }, "shrunk buffer invalidates the view")
}
