package pools

import "sync"

// BytePool is a multi-tiered byte slice pool for different size classes
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Common buffer sizes for serialized responses
var defaultSizes = []int{
	512,   // status line and headers only
	2048,  // small text and JSON bodies
	8192,  // Large
	32768, // Extra large
}

// NewBytePool creates a new byte pool with standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		size := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, 0, size)
				return &buf
			},
		}
	}

	return bp
}

// GetBuffer returns an empty buffer with room for at least size bytes.
// Sizes beyond the largest tier are allocated directly.
func (bp *BytePool) GetBuffer(size int) *[]byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := bp.pools[i].Get().(*[]byte)
			*buf = (*buf)[:0]
			return buf
		}
	}

	buf := make([]byte, 0, size)
	return &buf
}

// PutBuffer returns a buffer to the tier matching its capacity. Buffers that
// grew past their tier are dropped.
func (bp *BytePool) PutBuffer(buf *[]byte) {
	if buf == nil {
		return
	}

	capacity := cap(*buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			*buf = (*buf)[:0]
			bp.pools[i].Put(buf)
			return
		}
	}
}

var globalBytePool = NewBytePool()

// GetBuffer takes a buffer from the shared pool.
func GetBuffer(size int) *[]byte {
	return globalBytePool.GetBuffer(size)
}

// PutBuffer returns a buffer to the shared pool.
func PutBuffer(buf *[]byte) {
	globalBytePool.PutBuffer(buf)
}
