// Object pools for reducing GC pressure in hot paths
//
// Provides reusable buffers for the register transaction path:
// - Sized byte slices (for register value bodies)
// - Byte buffers (for assembling bridge frames and masked-write bodies)
//
// Usage:
//
//	buf := pool.GetRegBuf(4)
//	defer pool.PutRegBuf(buf)
//	// use buf...
//
// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// RegBuf pool - for register value bodies. Register transactions move
// 1, 2, 4, 5 or 8 byte values; each common width gets its own pool.
type regBufPool struct {
	pools [5]sync.Pool // pools for sizes 1, 2, 4, 5, 8
}

var regBufs = &regBufPool{}

func init() {
	sizes := []int{1, 2, 4, 5, 8}
	for i, size := range sizes {
		s := size // capture for closure
		regBufs.pools[i].New = func() any {
			return make([]byte, s)
		}
	}
}

// poolIndex returns the pool index for a given size, or -1 if no pool
func poolIndex(size int) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 5:
		return 3
	case 8:
		return 4
	default:
		return -1
	}
}

// GetRegBuf gets a byte slice of the given length from the pool.
// If the requested size doesn't match a pool, allocates a new slice.
func GetRegBuf(size int) []byte {
	idx := poolIndex(size)
	if idx >= 0 {
		b := regBufs.pools[idx].Get().([]byte)
		for i := range b {
			b[i] = 0
		}
		return b
	}
	return make([]byte, size)
}

// PutRegBuf returns a byte slice to the pool
func PutRegBuf(b []byte) {
	if b == nil {
		return
	}
	idx := poolIndex(len(b))
	if idx >= 0 {
		regBufs.pools[idx].Put(b)
	}
	// Non-pooled sizes are just discarded
}

// ByteBuffer pool - for transaction assembly buffers
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{
			buf: make([]byte, 0, 64), // Common transaction size
		}
	},
}

// GetByteBuffer gets a byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0] // Reset length but keep capacity
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil {
		return
	}
	// Don't pool oversized buffers (> 4KB)
	if cap(b.buf) > 4096 {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Len returns the buffer length
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the buffer capacity
func (b *ByteBuffer) Cap() int {
	return cap(b.buf)
}

// Reset clears the buffer
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}

// Grow ensures the buffer has capacity for n more bytes
func (b *ByteBuffer) Grow(n int) {
	if cap(b.buf)-len(b.buf) < n {
		newCap := cap(b.buf)*2 + n
		newBuf := make([]byte, len(b.buf), newCap)
		copy(newBuf, b.buf)
		b.buf = newBuf
	}
}
