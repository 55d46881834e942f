// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package engine

import (
	"github.com/mstreek/pakarc/format"
)

// WriteAt is one positioned write inside an update program.
type WriteAt struct {
	Off  uint64
	Data []byte
}

// CopyRange is one range copy inside a repack or rehash program.
type CopyRange struct {
	From, N, To uint64
}

// Update applies a sequence of positioned writes.
//
// Every mutating archive operation bottoms out in an Update: inserting
// writes the payload, then the slot record, then the header's live count;
// removing writes a tombstoned slot and the live count; flushing rewrites
// the header and index images. Ordering matters — payload bytes always land
// before the metadata that references them, so an interrupted program
// leaves at worst an untracked gap, never a descriptor pointing at garbage.
type Update struct {
	fsm
	writes  []WriteAt
	next    int
	pending bool
}

// NewUpdate returns a program applying writes in order.
func NewUpdate(writes ...WriteAt) *Update {
	return &Update{writes: writes}
}

// Resume implements Program.
func (u *Update) Resume(res Result) Step {
	if u.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return u.fail(res.Err)
	}

	// Each write is a seek/write pair; pending tracks which half is next.
	if u.pending {
		u.pending = false
		w := u.writes[u.next]
		u.next++
		return write(w.Data)
	}
	if u.next >= len(u.writes) {
		return u.finish()
	}
	u.pending = true
	return seekTo(u.writes[u.next].Off)
}

// TableWriter initializes an empty archive: header, zeroed index, and a
// truncation that leaves a pristine data area regardless of what the store
// held before.
type TableWriter struct {
	fsm
	state int
	hdr   format.Header
}

// NewTableWriter returns a program that writes an empty archive with the
// given header.
func NewTableWriter(hdr format.Header) *TableWriter {
	return &TableWriter{hdr: hdr}
}

// Resume implements Program.
func (w *TableWriter) Resume(res Result) Step {
	if w.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return w.fail(res.Err)
	}

	switch w.state {
	case 0:
		w.state = 1
		return seekTo(0)
	case 1:
		w.state = 2
		return write(format.EncodeHeader(&w.hdr))
	case 2:
		w.state = 3
		return fill(0, uint64(w.hdr.Capacity)*format.SlotSize)
	case 3:
		w.state = 4
		return truncate(w.hdr.DataOff)
	case 4:
		return w.finish()
	}
	panic("unreachable table writer state")
}

// Repack compacts an archive.
//
// The program runs in two phases. The staging phase copies every live
// payload, in ascending offset order, to scratch space past the current end
// of the store; until the commit begins, not a single byte of the existing
// archive has been overwritten, so a failure leaves the prior archive
// intact. The commit phase then copies the staged block down to the start
// of the data area, rewrites the header and index in one write, and
// truncates. A failure at or after commit is not recoverable by this
// package and surfaces as an error.
type Repack struct {
	fsm
	state int

	stage   []CopyRange
	next    int
	commit  CopyRange
	image   []byte
	truncTo uint64
}

// Repack states.
const (
	repackStage = iota
	repackCommit
	repackSeek
	repackImage
	repackTruncate
)

// NewRepack returns a repack program.
//
// stage lists the payload copies into scratch space, commit the single copy
// of the staged block down to the data area, image the new header+index
// bytes, and truncTo the final store length.
func NewRepack(stage []CopyRange, commit CopyRange, image []byte, truncTo uint64) *Repack {
	return &Repack{stage: stage, commit: commit, image: image, truncTo: truncTo}
}

// Resume implements Program.
func (r *Repack) Resume(res Result) Step {
	if r.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return r.fail(res.Err)
	}

	switch r.state {
	case repackStage:
		if r.next < len(r.stage) {
			c := r.stage[r.next]
			r.next++
			return copyRange(c.From, c.N, c.To)
		}
		// A zero-length commit copy is a no-op for the driver.
		r.state = repackCommit
		return copyRange(r.commit.From, r.commit.N, r.commit.To)

	case repackCommit:
		r.state = repackSeek
		return seekTo(0)

	case repackSeek:
		r.state = repackImage
		return write(r.image)

	case repackImage:
		r.state = repackTruncate
		return truncate(r.truncTo)

	case repackTruncate:
		return r.finish()
	}
	panic("unreachable repack state")
}

// Rehash widens an archive's index table in place.
//
// Payloads that would be overlapped by the wider index region are first
// copied to scratch space past the end of the store, then the new header
// and reprobed index are written in one image. The caller reseeds its
// free-space accounting afterwards; the moved payloads' old ranges simply
// become gaps.
type Rehash struct {
	fsm
	state int

	moves []CopyRange
	next  int
	image []byte
}

// NewRehash returns a rehash program. moves relocates payloads out of the
// widened index region; image is the new header+index bytes.
func NewRehash(moves []CopyRange, image []byte) *Rehash {
	return &Rehash{moves: moves, image: image}
}

// Resume implements Program.
func (r *Rehash) Resume(res Result) Step {
	if r.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return r.fail(res.Err)
	}

	switch r.state {
	case 0:
		if r.next < len(r.moves) {
			c := r.moves[r.next]
			r.next++
			return copyRange(c.From, c.N, c.To)
		}
		r.state = 1
		return seekTo(0)
	case 1:
		r.state = 2
		return write(r.image)
	case 2:
		return r.finish()
	}
	panic("unreachable rehash state")
}
