// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package engine implements the archive's decode and encode algorithms as
// resumable programs.
//
// A Program never touches a file or a buffer directly. Instead it advances
// until it needs IO, then suspends by returning a Step describing exactly
// what it needs: "read this many bytes", "seek here", "write these bytes",
// and so on. A driver satisfies the step against a concrete byte store and
// resumes the program with the Result. The same program therefore runs
// unmodified over a file, a memory buffer, or any other store that can
// satisfy the step vocabulary.
//
// Progress state lives in plain struct fields, so a suspended program is an
// ordinary value: it holds no goroutine and blocks nobody.
package engine

import (
	"io"

	"github.com/pkg/errors"
)

// ErrUnexpectedEOF is returned when a backing store is exhausted before a
// program's read request could be satisfied.
var ErrUnexpectedEOF = errors.New("unexpected end of archive")

// Op is the kind of IO a suspended program is waiting on.
type Op uint8

// Step operations.
const (
	// OpDone marks a completed program. Consult Program.Err for the
	// outcome; no Result should be fed after OpDone.
	OpDone Op = iota

	// OpReadExact requests exactly N bytes from the current position.
	// Drivers report exhaustion as ErrUnexpectedEOF.
	OpReadExact

	// OpRead requests up to N bytes from the current position. Short reads
	// are fine; they are how programs observe end of input.
	OpRead

	// OpSeek repositions the store cursor (Off, Whence as in io.Seeker)
	// and reports the new absolute position.
	OpSeek

	// OpWrite writes Data at the current position.
	OpWrite

	// OpFill writes N copies of Value at the current position.
	OpFill

	// OpCopy copies N bytes from absolute offset From to absolute offset
	// To. The cursor position afterwards is unspecified.
	OpCopy

	// OpTruncate truncates the store to N bytes.
	OpTruncate
)

// Step is a suspended program's request to its driver.
type Step struct {
	Op Op

	// N is the byte count for reads, fills, copies and truncation.
	N uint64

	// Off and Whence parameterize OpSeek.
	Off    int64
	Whence int

	// Data is the payload for OpWrite.
	Data []byte

	// Value is the fill byte for OpFill.
	Value byte

	// From and To are the absolute offsets for OpCopy.
	From, To uint64
}

// Result carries the outcome of the previous Step back into a program.
//
// A non-nil Err fails the program at its suspension point; drivers pass
// transport errors through unmodified.
type Result struct {
	// Data holds the bytes produced by a read step.
	Data []byte

	// Pos holds the absolute position produced by a seek step.
	Pos uint64

	// Err is the transport error that prevented the step, if any.
	Err error
}

// Program is a resumable decode or encode computation.
//
// The first call to Resume must pass a zero Result. Each subsequent call
// feeds the outcome of the previously returned Step. Once Resume returns a
// Step with Op == OpDone the program has terminated and Err reports its
// outcome; further Resume calls keep returning OpDone.
type Program interface {
	Resume(Result) Step
	Err() error
}

// fsm carries the termination state shared by all programs.
type fsm struct {
	done bool
	err  error
}

func (f *fsm) Err() error { return f.err }

func (f *fsm) fail(err error) Step {
	f.done, f.err = true, err
	return Step{Op: OpDone}
}

func (f *fsm) finish() Step {
	f.done = true
	return Step{Op: OpDone}
}

func readExact(n uint64) Step    { return Step{Op: OpReadExact, N: n} }
func read(n uint64) Step         { return Step{Op: OpRead, N: n} }
func seekTo(off uint64) Step     { return Step{Op: OpSeek, Off: int64(off)} }
func seekEnd() Step              { return Step{Op: OpSeek, Whence: io.SeekEnd} }
func write(p []byte) Step        { return Step{Op: OpWrite, Data: p} }
func fill(v byte, n uint64) Step { return Step{Op: OpFill, Value: v, N: n} }
func copyRange(from, n, to uint64) Step {
	return Step{Op: OpCopy, From: from, N: n, To: to}
}
func truncate(n uint64) Step { return Step{Op: OpTruncate, N: n} }
