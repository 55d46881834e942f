// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"sort"

	"github.com/mstreek/pakarc/format"
)

// freeRegion is a reusable gap in the data area.
type freeRegion struct {
	off, size uint64
}

func (r freeRegion) end() uint64 { return r.off + r.size }

// allocator tracks free space in the data area.
//
// Regions are kept sorted by offset and never overlap or abut; freeing
// coalesces with both neighbors. Allocation is first fit: the lowest gap
// that holds the request wins, and only when no gap does is the data area
// extended.
type allocator struct {
	base    uint64 // start of the data area
	end     uint64 // first byte past the last payload
	regions []freeRegion
}

func newAllocator(base uint64) *allocator {
	return &allocator{base: base, end: base}
}

// seed rebuilds the free list from the live payload ranges of a decoded
// table. Ranges that overlap mean the slot table is lying about the data
// area and the archive cannot be trusted.
func (a *allocator) seed(base uint64, descs []format.Descriptor) error {
	a.base, a.end = base, base
	a.regions = a.regions[:0]

	sorted := make([]format.Descriptor, len(descs))
	copy(sorted, descs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	cursor := base
	for _, d := range sorted {
		// Zero-length payloads occupy no bytes; their offset is nominal
		// and may coincide with another entry's.
		if d.StoredLen == 0 {
			continue
		}
		if d.Offset < cursor {
			return &format.CorruptSlotError{Slot: -1, Reason: "overlapping payload ranges"}
		}
		if d.Offset > cursor {
			a.regions = append(a.regions, freeRegion{off: cursor, size: d.Offset - cursor})
		}
		cursor = d.End()
	}
	a.end = cursor
	return nil
}

// alloc reserves n bytes and returns their offset. n must be positive.
func (a *allocator) alloc(n uint64) uint64 {
	for i := range a.regions {
		r := &a.regions[i]
		if r.size < n {
			continue
		}
		off := r.off
		if r.size == n {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
		} else {
			r.off += n
			r.size -= n
		}
		return off
	}
	off := a.end
	a.end += n
	return off
}

// free returns the range [off, off+n) to the pool.
func (a *allocator) free(off, n uint64) {
	if n == 0 {
		return
	}
	if off+n == a.end {
		// Tail release: pull the end back, swallowing an abutting gap.
		a.end = off
		if k := len(a.regions); k > 0 && a.regions[k-1].end() == a.end {
			a.end = a.regions[k-1].off
			a.regions = a.regions[:k-1]
		}
		return
	}

	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].off >= off })

	// Coalesce with the predecessor, the successor, or both.
	joinPrev := i > 0 && a.regions[i-1].end() == off
	joinNext := i < len(a.regions) && off+n == a.regions[i].off
	switch {
	case joinPrev && joinNext:
		a.regions[i-1].size += n + a.regions[i].size
		a.regions = append(a.regions[:i], a.regions[i+1:]...)
	case joinPrev:
		a.regions[i-1].size += n
	case joinNext:
		a.regions[i].off = off
		a.regions[i].size += n
	default:
		a.regions = append(a.regions, freeRegion{})
		copy(a.regions[i+1:], a.regions[i:])
		a.regions[i] = freeRegion{off: off, size: n}
	}
}

// compact reports whether the data area has no gaps.
func (a *allocator) compact() bool { return len(a.regions) == 0 }

// freeBytes totals the reusable gap space.
func (a *allocator) freeBytes() uint64 {
	var n uint64
	for _, r := range a.regions {
		n += r.size
	}
	return n
}

func (a *allocator) fragments() int { return len(a.regions) }
