// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package memstore provides an in-memory byte store with file-like
// semantics: reads hit EOF at the end, seeks may land past it, and writes
// past the end zero-fill the gap. It backs archives that never touch disk
// and keeps tests hermetic.
package memstore

import (
	"io"

	"github.com/pkg/errors"
)

// Store is an in-memory seekable byte store. The zero value is an empty
// store ready for use.
type Store struct {
	buf []byte
	pos int64
}

// New returns a Store seeded with p. The Store takes ownership of p.
func New(p []byte) *Store {
	return &Store{buf: p}
}

// Len returns the store's current length.
func (s *Store) Len() int { return len(s.buf) }

// Bytes returns the store's contents. The slice aliases the store and is
// invalidated by the next mutation.
func (s *Store) Bytes() []byte { return s.buf }

// Read implements io.Reader.
func (s *Store) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker. Seeking past the end is allowed; the store
// only grows when something is written there.
func (s *Store) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = int64(len(s.buf)) + offset
	default:
		return 0, errors.Errorf("invalid seek whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("seek before start of store")
	}
	s.pos = pos
	return pos, nil
}

// Write implements io.Writer, extending the store as needed. A write past
// the current end zero-fills the gap, like a sparse file.
func (s *Store) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

// Truncate resizes the store to size, zero-filling when growing. The
// cursor position is unchanged.
func (s *Store) Truncate(size int64) error {
	if size < 0 {
		return errors.New("negative truncation size")
	}
	switch {
	case size <= int64(len(s.buf)):
		s.buf = s.buf[:size]
	default:
		grown := make([]byte, size)
		copy(grown, s.buf)
		s.buf = grown
	}
	return nil
}
