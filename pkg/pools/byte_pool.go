package pools

import (
	"math/bits"
	"sync"
)

// Buffer size classes. Most DATA and ENTRY objects fit the first two.
const (
	MinClassSize = 64
	MaxPool      = 1 << 20 // buffers above this are left to the GC
)

// numClasses covers MinClassSize<<0 .. MaxPool.
var numClasses = bits.Len(uint(MaxPool / MinClassSize))

// classFor returns the index of the smallest class holding size bytes.
func classFor(size int) int {
	if size <= MinClassSize {
		return 0
	}
	return bits.Len(uint((size - 1) / MinClassSize))
}

// BytePool provides power-of-two size-class pooling for byte slices.
type BytePool struct {
	classes []sync.Pool
}

// NewBytePool creates a new byte pool.
func NewBytePool() *BytePool {
	p := &BytePool{classes: make([]sync.Pool, numClasses)}
	for i := range p.classes {
		size := MinClassSize << i
		p.classes[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return p
}

// Get returns a byte slice with length 0 and at least the requested capacity.
func (p *BytePool) Get(size int) []byte {
	if size > MaxPool {
		return make([]byte, 0, size)
	}
	bp, ok := p.classes[classFor(size)].Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, 0, size)
	}
	return (*bp)[:0]
}

// GetSized returns a zeroed byte slice with exactly the requested length.
func (p *BytePool) GetSized(size int) []byte {
	b := p.Get(size)[:size]
	clear(b)
	return b
}

// Put returns a byte slice to the pool for reuse. A slice is filed under the
// largest class it can fully serve.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c < MinClassSize || c > MaxPool {
		return
	}
	class := bits.Len(uint(c/MinClassSize)) - 1
	b = b[:0]
	p.classes[class].Put(&b)
}

var defaultBytePool = NewBytePool()

// GetBytes returns a byte slice from the default pool.
func GetBytes(size int) []byte {
	return defaultBytePool.Get(size)
}

// GetBytesSized returns a zeroed byte slice with exact length from the default pool.
func GetBytesSized(size int) []byte {
	return defaultBytePool.GetSized(size)
}

// PutBytes returns a byte slice to the default pool.
func PutBytes(b []byte) {
	defaultBytePool.Put(b)
}
