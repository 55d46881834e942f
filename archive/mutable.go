// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/mstreek/pakarc/engine"
	"github.com/mstreek/pakarc/format"
	"github.com/mstreek/pakarc/support/fmtutil"
)

// Mutable is a read-write handle over an archive.
//
// Mutations edit the archive in place: freed payload ranges are reused by
// later insertions, and the file only shrinks on Repack. Every mutation
// writes payload bytes before the metadata that references them.
type Mutable struct {
	*Archive
	m MutableStore
}

// Create initializes an empty archive in s and returns a handle over it.
// Whatever s held before is discarded.
func Create(s MutableStore, o *Options) (*Mutable, error) {
	capacity := o.capacity()
	hdr := format.Header{
		Version:  format.Version,
		Capacity: capacity,
		IndexOff: format.HeaderSize,
		DataOff:  format.DataOffset(capacity),
	}

	d := newDriver(s)
	if err := d.run(engine.NewTableWriter(hdr)); err != nil {
		return nil, errors.Wrap(err, "initializing archive")
	}

	a := &Archive{
		d:      d,
		hdr:    hdr,
		idx:    newIndex(capacity),
		space:  newAllocator(hdr.DataOff),
		logger: o.logger(),
	}
	archiveOpens.Inc()
	return &Mutable{Archive: a, m: s}, nil
}

// OpenMutable validates the archive in s and returns a read-write handle
// over it.
func OpenMutable(s MutableStore, o *Options) (*Mutable, error) {
	a, err := Open(s, o)
	if err != nil {
		return nil, err
	}
	return &Mutable{Archive: a, m: s}, nil
}

// Insert adds a new entry. Fails with ErrAlreadyExists when the name is
// taken and with ErrCompressionFailed when the scheme's codec fails; a
// codec failure never silently stores the raw payload instead.
func (m *Mutable) Insert(name string, p []byte, scheme format.Scheme) error {
	return m.insert(name, p, scheme, false)
}

// InsertOrReplace adds a new entry, or replaces the payload of an existing
// one under the same name.
func (m *Mutable) InsertOrReplace(name string, p []byte, scheme format.Scheme) error {
	return m.insert(name, p, scheme, true)
}

func (m *Mutable) insert(name string, p []byte, scheme format.Scheme, replace bool) error {
	if len(name) > format.NameCap {
		return errors.Wrapf(format.ErrNameTooLong, "%q is %d bytes", name, len(name))
	}
	if err := scheme.Valid(); err != nil {
		return err
	}

	pos, exists := m.idx.lookup(name)
	if exists && !replace {
		return errors.Wrapf(ErrAlreadyExists, "%q", name)
	}
	if !exists && m.idx.needsGrow() {
		if err := m.grow(); err != nil {
			return err
		}
	}

	stored := p
	if scheme != format.SchemeNone {
		var err error
		if stored, err = scheme.Compress(p); err != nil {
			return errors.Wrapf(ErrCompressionFailed, "%q with %s: %v", name, scheme, err)
		}
	}

	slot := format.Slot{
		State:    format.SlotOccupied,
		Name:     name,
		NameHash: format.NameHash(name),
		Desc: format.Descriptor{
			StoredLen:       uint64(len(stored)),
			UncompressedLen: uint64(len(p)),
			Scheme:          scheme,
			Checksum:        format.Checksum(p),
		},
	}
	if len(stored) > 0 {
		slot.Desc.Offset = m.space.alloc(uint64(len(stored)))
	} else {
		slot.Desc.Offset = m.hdr.DataOff
	}

	rec, err := format.EncodeSlot(&slot)
	if err != nil {
		m.space.free(slot.Desc.Offset, slot.Desc.StoredLen)
		return err
	}
	if !exists {
		if pos, err = m.idx.insertPos(name); err != nil {
			m.space.free(slot.Desc.Offset, slot.Desc.StoredLen)
			return err
		}
	}

	writes := make([]engine.WriteAt, 0, 3)
	if len(stored) > 0 {
		writes = append(writes, engine.WriteAt{Off: slot.Desc.Offset, Data: stored})
	}
	writes = append(writes, engine.WriteAt{Off: format.SlotOffset(&m.hdr, int(pos)), Data: rec})
	if !exists {
		writes = append(writes, engine.WriteAt{
			Off:  format.LiveCountOffset(),
			Data: format.EncodeLiveCount(m.idx.live + 1),
		})
	}

	if err := m.d.run(engine.NewUpdate(writes...)); err != nil {
		m.space.free(slot.Desc.Offset, slot.Desc.StoredLen)
		return errors.Wrapf(err, "inserting %q", name)
	}

	if exists {
		old := m.idx.slots[pos].Desc
		m.idx.replaceDesc(pos, slot.Desc)
		m.space.free(old.Offset, old.StoredLen)
	} else {
		m.idx.setOccupied(pos, slot)
	}
	entryInserts.Inc()
	entryInsertBytes.Add(float64(slot.Desc.StoredLen))
	m.logger.Debugf("inserted %q: %d bytes stored at %#x (%s), record %v",
		name, slot.Desc.StoredLen, slot.Desc.Offset, scheme, fmtutil.HexSlice(rec))
	return nil
}

// Remove deletes the named entry, reporting whether it existed. The slot is
// tombstoned and its payload range returned to the free pool; the bytes
// themselves stay on disk until reused or repacked away.
func (m *Mutable) Remove(name string) (bool, error) {
	pos, ok := m.idx.lookup(name)
	if !ok {
		return false, nil
	}

	tomb, err := format.EncodeSlot(&format.Slot{State: format.SlotTombstone})
	if err != nil {
		return false, err
	}
	err = m.d.run(engine.NewUpdate(
		engine.WriteAt{Off: format.SlotOffset(&m.hdr, int(pos)), Data: tomb},
		engine.WriteAt{Off: format.LiveCountOffset(), Data: format.EncodeLiveCount(m.idx.live - 1)},
	))
	if err != nil {
		return false, errors.Wrapf(err, "removing %q", name)
	}

	desc := m.idx.slots[pos].Desc
	m.idx.setTombstone(pos)
	m.space.free(desc.Offset, desc.StoredLen)
	entryRemovals.Inc()
	return true, nil
}

// Rename gives an existing entry a new name without touching its payload.
//
// The rename writes two slot records: the entry under its new name, then a
// tombstone over the old one. A transport failure between the two leaves
// both names live and the stored live count one short, which Open reports
// as corruption. Repairing that state requires rewriting the table image.
func (m *Mutable) Rename(oldName, newName string) error {
	if len(newName) > format.NameCap {
		return errors.Wrapf(format.ErrNameTooLong, "%q is %d bytes", newName, len(newName))
	}
	if _, taken := m.idx.lookup(newName); taken {
		return errors.Wrapf(ErrAlreadyExists, "%q", newName)
	}
	oldPos, ok := m.idx.lookup(oldName)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", oldName)
	}

	// The new name claims a fresh slot, so the rename can push the table
	// over its load bound even though the live count does not change.
	if m.idx.needsGrow() {
		if err := m.grow(); err != nil {
			return err
		}
		oldPos, _ = m.idx.lookup(oldName)
	}

	slot := m.idx.slots[oldPos]
	slot.Name = newName
	slot.NameHash = format.NameHash(newName)
	rec, err := format.EncodeSlot(&slot)
	if err != nil {
		return err
	}
	newPos, err := m.idx.insertPos(newName)
	if err != nil {
		return err
	}
	tomb, err := format.EncodeSlot(&format.Slot{State: format.SlotTombstone})
	if err != nil {
		return err
	}

	err = m.d.run(engine.NewUpdate(
		engine.WriteAt{Off: format.SlotOffset(&m.hdr, int(newPos)), Data: rec},
		engine.WriteAt{Off: format.SlotOffset(&m.hdr, int(oldPos)), Data: tomb},
	))
	if err != nil {
		return errors.Wrapf(err, "renaming %q to %q", oldName, newName)
	}

	m.idx.setOccupied(newPos, slot)
	m.idx.setTombstone(oldPos)
	return nil
}

// grow widens the on-disk index to twice its capacity, relocating any
// payloads the wider table would overlap and reprobing every live entry.
func (m *Mutable) grow() error {
	capacity := m.idx.capacity() * 2
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	hdr := m.hdr
	hdr.Capacity = capacity
	hdr.DataOff = format.DataOffset(capacity)

	// Payloads below the new data offset move to scratch space past the
	// current end of the data area.
	slots := make([]format.Slot, len(m.idx.slots))
	copy(slots, m.idx.slots)
	var moves []engine.CopyRange
	cursor := m.space.end
	if cursor < hdr.DataOff {
		cursor = hdr.DataOff
	}
	for i := range slots {
		s := &slots[i]
		if s.State != format.SlotOccupied || s.Desc.Offset >= hdr.DataOff {
			continue
		}
		if s.Desc.StoredLen > 0 {
			moves = append(moves, engine.CopyRange{
				From: s.Desc.Offset, N: s.Desc.StoredLen, To: cursor,
			})
			s.Desc.Offset = cursor
			cursor += s.Desc.StoredLen
		} else {
			s.Desc.Offset = hdr.DataOff
		}
	}

	next := (&index{slots: slots}).rehashed(capacity)
	next.version = m.idx.version + 1
	image, err := encodeImage(hdr, next)
	if err != nil {
		return err
	}
	if err := m.d.run(engine.NewRehash(moves, image)); err != nil {
		return errors.Wrap(err, "widening index table")
	}

	m.hdr = hdr
	m.idx = next
	if err := m.space.seed(hdr.DataOff, m.liveDescs()); err != nil {
		return err
	}
	tableRehashes.Inc()
	m.logger.Debugf("index table widened to %d slots", capacity)
	return nil
}

// Repack defragments the archive: live payloads are rewritten contiguously
// from the start of the data area, tombstones are discarded, and the file
// is truncated to its minimal length.
//
// Repack stages every payload copy in scratch space past the end of the
// data area before touching a single existing byte, so a failure before
// the final commit leaves the archive exactly as it was. A failure at or
// after commit is surfaced and is not recoverable here.
func (m *Mutable) Repack() error {
	if m.space.compact() && m.idx.used == m.idx.live {
		return nil
	}

	type liveSlot struct {
		pos  int
		desc format.Descriptor
	}
	live := make([]liveSlot, 0, m.idx.live)
	var total uint64
	for i := range m.idx.slots {
		if m.idx.slots[i].State == format.SlotOccupied {
			live = append(live, liveSlot{pos: i, desc: m.idx.slots[i].Desc})
			total += m.idx.slots[i].Desc.StoredLen
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].desc.Offset < live[j].desc.Offset })

	slots := make([]format.Slot, len(m.idx.slots))
	copy(slots, m.idx.slots)

	stageBase := m.space.end
	var stage []engine.CopyRange
	var commit engine.CopyRange
	if m.space.compact() {
		// Payloads are already contiguous; only the index image changes.
	} else {
		cursor := stageBase
		for _, ls := range live {
			newOff := m.hdr.DataOff + (cursor - stageBase)
			if ls.desc.StoredLen > 0 {
				stage = append(stage, engine.CopyRange{
					From: ls.desc.Offset, N: ls.desc.StoredLen, To: cursor,
				})
				cursor += ls.desc.StoredLen
			} else {
				newOff = m.hdr.DataOff
			}
			slots[ls.pos].Desc.Offset = newOff
		}
		commit = engine.CopyRange{From: stageBase, N: total, To: m.hdr.DataOff}
	}

	next := (&index{slots: slots}).rehashed(m.idx.capacity())
	next.version = m.idx.version + 1
	image, err := encodeImage(m.hdr, next)
	if err != nil {
		return err
	}
	truncTo := m.hdr.DataOff + total
	if err := m.d.run(engine.NewRepack(stage, commit, image, truncTo)); err != nil {
		return errors.Wrap(err, "repacking archive")
	}

	m.idx = next
	if err := m.space.seed(m.hdr.DataOff, m.liveDescs()); err != nil {
		return err
	}
	repacks.Inc()
	if stageBase > truncTo {
		repackReclaimedBytes.Add(float64(stageBase - truncTo))
	}
	m.logger.Infof("repacked archive: %d live entries, %d bytes", len(live), truncTo)
	return nil
}

// Flush rewrites the header and index so the backing store reflects the
// in-memory state, then syncs the store when it supports syncing.
func (m *Mutable) Flush() error {
	image, err := encodeImage(m.hdr, m.idx)
	if err != nil {
		return err
	}
	if err := m.d.run(engine.NewUpdate(engine.WriteAt{Off: 0, Data: image})); err != nil {
		return errors.Wrap(err, "flushing header and index")
	}
	if s, ok := m.m.(interface{ Sync() error }); ok {
		return errors.Wrap(s.Sync(), "syncing store")
	}
	return nil
}

// encodeImage renders the header and index as one contiguous byte image.
func encodeImage(hdr format.Header, idx *index) ([]byte, error) {
	t := idx.table(hdr)
	img, err := format.EncodeIndex(t)
	if err != nil {
		return nil, err
	}
	return append(format.EncodeHeader(&t.Header), img...), nil
}
