// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"io"

	"github.com/mstreek/pakarc/engine"
	"github.com/mstreek/pakarc/support/bufferpool"
)

// Store is the read-side capability an archive needs from its backing
// byte store. *os.File and memstore.Store both satisfy it.
type Store interface {
	io.ReadSeeker
}

// MutableStore adds the write-side capabilities. The method set is chosen
// to match *os.File, so a plain opened file is a MutableStore with no
// adapter.
type MutableStore interface {
	Store
	io.Writer
	Truncate(size int64) error
}

// copyChunkSize bounds the scratch buffer used to satisfy copy and fill
// steps.
const copyChunkSize = 64 * 1024

// scratch pools the chunk buffers shared by all drivers.
var scratch = bufferpool.Pool{Size: copyChunkSize}

// driver satisfies engine steps against a concrete store.
//
// A driver built over a Store that is not a MutableStore answers every
// mutating step with ErrReadOnly; the program fails at its suspension
// point and the store is untouched.
type driver struct {
	s Store
	m MutableStore // nil when read-only
}

func newDriver(s Store) driver {
	d := driver{s: s}
	if m, ok := s.(MutableStore); ok {
		d.m = m
	}
	return d
}

// run drives p to completion and returns its outcome.
func (d driver) run(p engine.Program) error {
	var res engine.Result
	for {
		step := p.Resume(res)
		if step.Op == engine.OpDone {
			return p.Err()
		}
		res = d.step(step)
	}
}

func (d driver) step(step engine.Step) engine.Result {
	switch step.Op {
	case engine.OpReadExact:
		buf := make([]byte, step.N)
		if _, err := io.ReadFull(d.s, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = engine.ErrUnexpectedEOF
			}
			return engine.Result{Err: err}
		}
		return engine.Result{Data: buf}

	case engine.OpRead:
		buf := make([]byte, step.N)
		n, err := io.ReadFull(d.s, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil {
			return engine.Result{Err: err}
		}
		return engine.Result{Data: buf[:n]}

	case engine.OpSeek:
		pos, err := d.s.Seek(step.Off, step.Whence)
		if err != nil {
			return engine.Result{Err: err}
		}
		return engine.Result{Pos: uint64(pos)}

	case engine.OpWrite:
		if d.m == nil {
			return engine.Result{Err: ErrReadOnly}
		}
		if _, err := d.m.Write(step.Data); err != nil {
			return engine.Result{Err: err}
		}
		return engine.Result{}

	case engine.OpFill:
		if d.m == nil {
			return engine.Result{Err: ErrReadOnly}
		}
		return engine.Result{Err: d.fill(step.Value, step.N)}

	case engine.OpCopy:
		if d.m == nil {
			return engine.Result{Err: ErrReadOnly}
		}
		return engine.Result{Err: d.copyRange(step.From, step.N, step.To)}

	case engine.OpTruncate:
		if d.m == nil {
			return engine.Result{Err: ErrReadOnly}
		}
		return engine.Result{Err: d.m.Truncate(int64(step.N))}
	}
	panic("unknown engine step")
}

func (d driver) fill(v byte, n uint64) error {
	buf := scratch.Get()
	defer buf.Release()

	chunk := buf.Bytes()
	for i := range chunk {
		chunk[i] = v
	}
	for n > 0 {
		c := chunk[:minU64(n, uint64(len(chunk)))]
		if _, err := d.m.Write(c); err != nil {
			return err
		}
		n -= uint64(len(c))
	}
	return nil
}

// copyRange copies front to back, so overlapping ranges are safe whenever
// the destination precedes the source.
func (d driver) copyRange(from, n, to uint64) error {
	buf := scratch.Get()
	defer buf.Release()

	for n > 0 {
		c := buf.Bytes()[:minU64(n, uint64(len(buf.Bytes())))]
		if _, err := d.s.Seek(int64(from), io.SeekStart); err != nil {
			return err
		}
		if _, err := io.ReadFull(d.s, c); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = engine.ErrUnexpectedEOF
			}
			return err
		}
		if _, err := d.s.Seek(int64(to), io.SeekStart); err != nil {
			return err
		}
		if _, err := d.m.Write(c); err != nil {
			return err
		}
		from += uint64(len(c))
		to += uint64(len(c))
		n -= uint64(len(c))
	}
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
