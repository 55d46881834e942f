// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool maintains reusable fixed-size byte buffers. It keeps
// bulk copy and fill operations from allocating a fresh scratch buffer per
// call.
package bufferpool

import (
	"sync"
)

// Pool maintains a pool of buffers. It offers a new buffer when one is
// unavailable.
type Pool struct {
	// Size is the size of the buffers in this pool.
	Size int

	base sync.Pool
}

// Get returns a buffer, allocating one if one is not available.
//
// The caller should return the buffer to the pool by calling its Release
// method when done with it.
func (bp *Pool) Get() *Buffer {
	b, ok := bp.base.Get().(*Buffer)
	if !ok {
		b = &Buffer{bytes: make([]byte, bp.Size)}
	}
	b.pool = bp
	return b
}

// Buffer is a byte buffer that can be released into a Pool for reuse.
//
// Failure to release a Buffer will not cause a memory leak, but will
// prevent its reuse.
type Buffer struct {
	bytes []byte
	pool  *Pool
}

// Bytes returns this buffer's byte slice.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Release returns the buffer to its buffer pool.
//
// A Buffer must only be released once.
func (b *Buffer) Release() {
	var pool *Pool
	pool, b.pool = b.pool, nil
	pool.base.Put(b)
}
