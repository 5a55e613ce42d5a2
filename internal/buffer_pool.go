package internal

import (
	"sync"
)

// BufferPool recycles byte slices used to encode outgoing frames.
type BufferPool struct {
	pool sync.Pool
	max  int
}

// NewBufferPool returns a pool of slices with initialSize capacity. Slices
// that grew beyond maxSize are dropped on Put instead of being retained.
func NewBufferPool(initialSize, maxSize int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, 0, initialSize)
				return &b
			},
		},
		max: maxSize,
	}
}

func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(b *[]byte) {
	if cap(*b) > p.max {
		return
	}
	*b = (*b)[:0]
	p.pool.Put(b)
}
