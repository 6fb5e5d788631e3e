/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package pool

import (
	"bytes"
	"sync"
)

// maxRetainedSize is the largest buffer capacity handed back to the pool.
// Larger buffers are released to the garbage collector.
const maxRetainedSize = 64 * 1024

// BufferPool represents a buffer pool container.
type BufferPool struct {
	p sync.Pool
}

// NewBufferPool returns a new buffer pool instance.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		p: sync.Pool{New: func() interface{} { return new(bytes.Buffer) }},
	}
}

// Get returns an empty buffer instance from the pool.
func (bp *BufferPool) Get() *bytes.Buffer {
	return bp.p.Get().(*bytes.Buffer)
}

// Put returns a buffer instance to the pool.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() > maxRetainedSize {
		return
	}
	buf.Reset()
	bp.p.Put(buf)
}

// Copy returns a copy of buf contents that remains valid once buf is put back.
func Copy(buf *bytes.Buffer) []byte {
	b := make([]byte, buf.Len())
	copy(b, buf.Bytes())
	return b
}
