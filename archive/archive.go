// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package archive reads and mutates pakarc archive files.
//
// An Archive is a read-only handle over any seekable byte store; a Mutable
// additionally edits the archive in place, reusing freed space instead of
// rewriting the whole file. A handle exclusively owns its in-memory state
// for its lifetime: concurrent mutation of the same backing store through a
// second handle is unsupported and callers must serialize externally.
package archive

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/mstreek/pakarc/engine"
	"github.com/mstreek/pakarc/format"
	"github.com/mstreek/pakarc/support/logging"
)

// DefaultCapacity is the index capacity used by Create when Options does
// not specify one.
const DefaultCapacity = 64

// Options tunes archive handles. The zero value is a working default.
type Options struct {
	// Logger receives diagnostic output. Defaults to logging.Nop.
	Logger logging.L

	// Capacity is the initial index capacity for Create. Defaults to
	// DefaultCapacity.
	Capacity uint32
}

func (o *Options) logger() logging.L {
	if o == nil {
		return logging.Nop
	}
	return logging.Must(o.Logger)
}

func (o *Options) capacity() uint32 {
	if o == nil || o.Capacity == 0 {
		return DefaultCapacity
	}
	return o.Capacity
}

// Archive is a read-only handle over an opened archive.
type Archive struct {
	d      driver
	hdr    format.Header
	idx    *index
	space  *allocator
	logger logging.L
}

// IsArchive reports whether s begins with the archive magic signature. It
// does not validate anything past the signature.
func IsArchive(s Store) (bool, error) {
	d := newDriver(s)
	sniff := engine.NewMagicSniffer()
	if err := d.run(sniff); err != nil {
		return false, err
	}
	return sniff.IsArchive(), nil
}

// Open validates the archive in s and returns a read-only handle over it.
//
// The full header and index are decoded and checked up front; entry
// payloads are only touched when read.
func Open(s Store, o *Options) (*Archive, error) {
	d := newDriver(s)
	parser := engine.NewTableParser()
	if err := d.run(parser); err != nil {
		archiveOpenErrors.Inc()
		return nil, err
	}

	t := parser.Table()
	a := &Archive{
		d:      d,
		hdr:    t.Header,
		idx:    indexFromTable(t),
		space:  newAllocator(t.Header.DataOff),
		logger: o.logger(),
	}
	if err := a.space.seed(t.Header.DataOff, a.liveDescs()); err != nil {
		archiveOpenErrors.Inc()
		return nil, err
	}

	archiveOpens.Inc()
	a.logger.Debugf("opened archive: %d/%d slots live, %d free bytes in %d gaps",
		a.idx.live, a.idx.capacity(), a.space.freeBytes(), a.space.fragments())
	return a, nil
}

func (a *Archive) liveDescs() []format.Descriptor {
	descs := make([]format.Descriptor, 0, a.idx.live)
	for i := range a.idx.slots {
		if a.idx.slots[i].State == format.SlotOccupied {
			descs = append(descs, a.idx.slots[i].Desc)
		}
	}
	return descs
}

// Len returns the number of live entries.
func (a *Archive) Len() int { return int(a.idx.live) }

// Capacity returns the index slot capacity.
func (a *Archive) Capacity() int { return int(a.idx.capacity()) }

// Contains reports whether an entry named name exists.
func (a *Archive) Contains(name string) bool {
	_, ok := a.idx.lookup(name)
	return ok
}

// WriteTo streams the decoded payload of the named entry into w.
//
// Fails with ErrNotFound when the entry does not exist and with a
// format.IntegrityError when the payload does not match its recorded
// checksum or length.
func (a *Archive) WriteTo(name string, w io.Writer) error {
	pos, ok := a.idx.lookup(name)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", name)
	}
	desc := a.idx.slots[pos].Desc
	if err := a.d.run(engine.NewPayloadReader(desc, w)); err != nil {
		if _, ok := err.(*format.IntegrityError); ok {
			integrityFailures.Inc()
		}
		return errors.Wrapf(err, "reading entry %q", name)
	}

	entryReads.Inc()
	entryReadBytes.Add(float64(desc.UncompressedLen))
	return nil
}

// Get returns the decoded payload of the named entry.
func (a *Archive) Get(name string) ([]byte, error) {
	pos, ok := a.idx.lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", name)
	}

	var buf bytes.Buffer
	buf.Grow(int(a.idx.slots[pos].Desc.UncompressedLen))
	if err := a.WriteTo(name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Info describes one live entry.
type Info struct {
	// Name is the entry's name.
	Name string

	// Size is the payload size after decompression.
	Size uint64

	// StoredSize is the payload's on-disk size.
	StoredSize uint64

	// Scheme is the entry's compression scheme.
	Scheme format.Scheme

	// Checksum is the CRC-32C of the decompressed payload.
	Checksum uint32
}

func infoFromSlot(s *format.Slot) Info {
	return Info{
		Name:       s.Name,
		Size:       s.Desc.UncompressedLen,
		StoredSize: s.Desc.StoredLen,
		Scheme:     s.Desc.Scheme,
		Checksum:   s.Desc.Checksum,
	}
}

// Stat returns metadata for the named entry without reading its payload.
func (a *Archive) Stat(name string) (Info, error) {
	pos, ok := a.idx.lookup(name)
	if !ok {
		return Info{}, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return infoFromSlot(&a.idx.slots[pos]), nil
}

// Stats summarizes an archive's space accounting.
type Stats struct {
	// Entries is the number of live entries.
	Entries int

	// Capacity is the index slot capacity.
	Capacity int

	// DataBytes is the total on-disk size of live payloads.
	DataBytes uint64

	// FreeBytes is the total size of reusable gaps in the data area.
	FreeBytes uint64

	// Fragments is the number of distinct gaps.
	Fragments int
}

// Stats returns the archive's space accounting summary.
func (a *Archive) Stats() Stats {
	var data uint64
	for i := range a.idx.slots {
		if a.idx.slots[i].State == format.SlotOccupied {
			data += a.idx.slots[i].Desc.StoredLen
		}
	}
	return Stats{
		Entries:   a.Len(),
		Capacity:  a.Capacity(),
		DataBytes: data,
		FreeBytes: a.space.freeBytes(),
		Fragments: a.space.fragments(),
	}
}

// Names returns the live entry names in table order.
func (a *Archive) Names() []string {
	names := make([]string, 0, a.idx.live)
	for it := a.Entries(); it.Next(); {
		names = append(names, it.Entry().Name)
	}
	return names
}

// Iterator walks an archive's live entries in table order.
//
// The iterator is invalidated by any mutation of its archive; a Next after
// mutation stops the walk and Err reports ErrConcurrentMutation.
type Iterator struct {
	a       *Archive
	version uint64
	pos     int
	cur     Info
	err     error
}

// Entries returns an iterator over the live entries, in table order.
func (a *Archive) Entries() *Iterator {
	return &Iterator{a: a, version: a.idx.version}
}

// Next advances to the next live entry, returning false when the walk is
// exhausted or failed.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.version != it.a.idx.version {
		it.err = ErrConcurrentMutation
		return false
	}
	for it.pos < len(it.a.idx.slots) {
		s := &it.a.idx.slots[it.pos]
		it.pos++
		if s.State == format.SlotOccupied {
			it.cur = infoFromSlot(s)
			return true
		}
	}
	return false
}

// Entry returns the entry most recently advanced to by Next.
func (it *Iterator) Entry() Info { return it.cur }

// Err returns the error that stopped the walk, if any.
func (it *Iterator) Err() error { return it.err }
