// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"github.com/mstreek/pakarc/format"
)

// index is the in-memory mirror of the on-disk slot table.
//
// Lookup and probing happen here; the on-disk table is only touched once
// the in-memory operation has decided exactly which slots change. Both
// tables use the same layout, so a slot position in the mirror is the slot
// position on disk.
type index struct {
	slots []format.Slot

	// live counts occupied slots; used additionally counts tombstones,
	// since tombstones lengthen probe chains just like occupied slots do.
	live uint32
	used uint32

	// version increments on every mutation; iterators snapshot it.
	version uint64
}

func newIndex(capacity uint32) *index {
	return &index{slots: make([]format.Slot, capacity)}
}

// indexFromTable mirrors a decoded on-disk table.
func indexFromTable(t *format.Table) *index {
	idx := &index{slots: t.Slots}
	for i := range idx.slots {
		switch idx.slots[i].State {
		case format.SlotOccupied:
			idx.live++
			idx.used++
		case format.SlotTombstone:
			idx.used++
		}
	}
	return idx
}

func (idx *index) capacity() uint32 { return uint32(len(idx.slots)) }

// probe returns the slot position after pos in the chain for hash h.
func (idx *index) probe(h uint32, i uint32) uint32 {
	return (h + i) % idx.capacity()
}

// lookup returns the position of the occupied slot holding name.
func (idx *index) lookup(name string) (uint32, bool) {
	h := format.NameHash(name)
	for i := uint32(0); i < idx.capacity(); i++ {
		pos := idx.probe(h, i)
		s := &idx.slots[pos]
		switch s.State {
		case format.SlotEmpty:
			return 0, false
		case format.SlotOccupied:
			if s.NameHash == h && s.Name == name {
				return pos, true
			}
		}
		// Tombstones keep the chain alive.
	}
	return 0, false
}

// insertPos picks the slot a new entry for name should occupy. The first
// tombstone on the probe chain is reused when the name is absent; a chain
// that reaches an empty slot without a match ends there.
func (idx *index) insertPos(name string) (uint32, error) {
	h := format.NameHash(name)
	reuse := uint32(0)
	haveReuse := false
	for i := uint32(0); i < idx.capacity(); i++ {
		pos := idx.probe(h, i)
		s := &idx.slots[pos]
		switch s.State {
		case format.SlotEmpty:
			if haveReuse {
				return reuse, nil
			}
			return pos, nil
		case format.SlotTombstone:
			if !haveReuse {
				reuse, haveReuse = pos, true
			}
		case format.SlotOccupied:
			if s.NameHash == h && s.Name == name {
				return 0, ErrAlreadyExists
			}
		}
	}
	if haveReuse {
		return reuse, nil
	}
	// Unreachable while the load factor bound holds.
	return 0, errTableFull
}

// needsGrow reports whether one more entry would push the table past the
// load factor bound. Tombstones count: they degrade probing exactly like
// live entries until a rehash clears them.
func (idx *index) needsGrow() bool {
	return uint64(idx.used+1)*4 > uint64(idx.capacity())*3
}

// setOccupied records an insertion at pos.
func (idx *index) setOccupied(pos uint32, s format.Slot) {
	if idx.slots[pos].State != format.SlotTombstone {
		idx.used++
	}
	idx.slots[pos] = s
	idx.live++
	idx.version++
}

// setTombstone records a removal at pos. The name and descriptor are
// cleared; only the state byte matters for probing.
func (idx *index) setTombstone(pos uint32) {
	idx.slots[pos] = format.Slot{State: format.SlotTombstone}
	idx.live--
	idx.version++
}

// replaceDesc records an in-place payload replacement at pos.
func (idx *index) replaceDesc(pos uint32, d format.Descriptor) {
	idx.slots[pos].Desc = d
	idx.version++
}

// rehashed builds a fresh mirror with the given capacity, reprobing every
// live entry and dropping tombstones.
func (idx *index) rehashed(capacity uint32) *index {
	next := newIndex(capacity)
	for i := range idx.slots {
		s := idx.slots[i]
		if s.State != format.SlotOccupied {
			continue
		}
		for j := uint32(0); j < capacity; j++ {
			pos := next.probe(s.NameHash, j)
			if next.slots[pos].State == format.SlotEmpty {
				next.slots[pos] = s
				break
			}
		}
	}
	next.live = idx.live
	next.used = idx.live
	next.version = idx.version
	return next
}

// table materializes the mirror as a format table under hdr.
func (idx *index) table(hdr format.Header) *format.Table {
	hdr.Live = idx.live
	return &format.Table{Header: hdr, Slots: idx.slots}
}
