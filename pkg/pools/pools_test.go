package pools

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"
)

func TestClassFor(t *testing.T) {
	tests := []struct {
		size, class int
	}{
		{0, 0}, {1, 0}, {64, 0}, {65, 1}, {128, 1}, {129, 2}, {4096, 6}, {MaxPool, numClasses - 1},
	}
	for _, tt := range tests {
		if got := classFor(tt.size); got != tt.class {
			t.Errorf("classFor(%d) = %d, want %d", tt.size, got, tt.class)
		}
		if tt.size > 0 && MinClassSize<<classFor(tt.size) < tt.size {
			t.Errorf("class %d too small for %d", classFor(tt.size), tt.size)
		}
	}
}

func TestBytePool_Get(t *testing.T) {
	pool := NewBytePool()

	for _, size := range []int{1, 16, 64, 100, 1000, 4096, 70000, MaxPool, MaxPool + 1} {
		b := pool.Get(size)
		if len(b) != 0 {
			t.Errorf("Get(%d) length = %d, want 0", size, len(b))
		}
		if cap(b) < size {
			t.Errorf("Get(%d) capacity = %d, want >= %d", size, cap(b), size)
		}
	}
}

func TestBytePool_GetSizedIsZeroed(t *testing.T) {
	pool := NewBytePool()

	b := pool.Get(100)
	b = append(b, bytes.Repeat([]byte{0xff}, 100)...)
	pool.Put(b)

	z := pool.GetSized(100)
	if len(z) != 100 {
		t.Fatalf("GetSized(100) length = %d", len(z))
	}
	for i, c := range z {
		if c != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, c)
		}
	}
}

func TestBytePool_PutOddCapacity(t *testing.T) {
	pool := NewBytePool()
	// 100 bytes can only serve the 64-byte class
	pool.Put(make([]byte, 0, 100))
	for i := 0; i < 10; i++ {
		if b := pool.Get(128); cap(b) < 128 {
			t.Fatalf("Get(128) returned cap %d", cap(b))
		}
	}
	pool.Put(make([]byte, 0, 8))
	pool.Put(make([]byte, 0, MaxPool*2))
}

func TestBufferBuilder(t *testing.T) {
	b := NewBufferBuilder(64)
	defer b.Release()

	b.WriteByte(0x03)
	b.WriteZeros(7)
	b.WriteUint64(0x0123456789abcdef)
	b.WriteUint32(0xdeadbeef)
	b.WriteString("hi")
	b.Align(8)

	result := b.Bytes()
	if len(result) != 24 {
		t.Fatalf("length = %d, want 24", len(result))
	}
	if result[0] != 0x03 {
		t.Errorf("result[0] = %#x", result[0])
	}
	if got := binary.LittleEndian.Uint64(result[8:]); got != 0x0123456789abcdef {
		t.Errorf("uint64 = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(result[16:]); got != 0xdeadbeef {
		t.Errorf("uint32 = %#x", got)
	}
	if string(result[20:22]) != "hi" || result[22] != 0 || result[23] != 0 {
		t.Errorf("tail = %q", result[20:])
	}

	b.PutUint64At(8, 7)
	if got := binary.LittleEndian.Uint64(b.Bytes()[8:]); got != 7 {
		t.Errorf("PutUint64At = %d", got)
	}
}

func TestBufferBuilder_Reset(t *testing.T) {
	b := NewBufferBuilder(32)
	defer b.Release()

	b.WriteString("test data")
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("After Reset() Len() = %d, want 0", b.Len())
	}
	b.Align(8)
	if b.Len() != 0 {
		t.Errorf("Align on empty buffer wrote %d bytes", b.Len())
	}
}

func TestBytePool_Concurrent(t *testing.T) {
	pool := NewBytePool()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := pool.Get(200)
				b = append(b, "concurrent test data"...)
				pool.Put(b)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkBufferBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		bb := NewBufferBuilder(128)
		bb.WriteByte(1)
		bb.WriteZeros(7)
		bb.WriteUint64(uint64(i))
		bb.WriteString("MESSAGE=hello")
		bb.Align(8)
		bb.Release()
	}
}
