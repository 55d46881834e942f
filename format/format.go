// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package format defines the on-disk layout of a pakarc archive.
//
// An archive is a single file with three regions:
//
//	header:     a fixed-size Header at offset 0.
//	index:      Capacity fixed-size Slots immediately after the header.
//	data area:  entry payloads and gaps, from DataOff to end of file.
//
// All multi-byte fields are big-endian. The package contains only pure
// record encoding and decoding; it performs no IO.
package format

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic is the file signature at offset 0 of every archive.
var Magic = [4]byte{'P', 'A', 'K', '\n'}

// Format geometry. Slot and header sizes are recorded in the header so that
// readers can reject archives produced by incompatible versions.
const (
	// Version is the current format version.
	Version uint16 = 1

	// HeaderSize is the encoded size of Header in bytes.
	HeaderSize = 32

	// SlotSize is the encoded size of a single index Slot in bytes.
	SlotSize = 128

	// NameCap is the maximum encoded length of an entry name in bytes.
	//
	// Names are stored inline in their Slot, so the cap is SlotSize minus
	// the slot's fixed fields.
	NameCap = SlotSize - 40

	// liveCountOff is the byte offset of the Header.Live field. Mutating
	// operations patch this field in place without rewriting the whole
	// header.
	liveCountOff = 12
)

// SlotState describes the occupancy of an index slot.
type SlotState uint8

// Valid slot states.
const (
	// SlotEmpty marks a slot that has never held an entry. An empty slot
	// terminates a probe sequence.
	SlotEmpty SlotState = 0

	// SlotOccupied marks a slot holding a live entry.
	SlotOccupied SlotState = 1

	// SlotTombstone marks a slot whose entry was removed. Tombstones keep
	// probe sequences intact until the next rehash or repack discards them.
	SlotTombstone SlotState = 2
)

// Header is the fixed-size record at the start of every archive.
type Header struct {
	// Version is the format version of the archive.
	Version uint16

	// Capacity is the number of slots in the index table. It is fixed at
	// creation time and changes only through an explicit rehash or repack.
	Capacity uint32

	// Live is the number of occupied slots.
	Live uint32

	// IndexOff is the byte offset of the index table.
	IndexOff uint64

	// DataOff is the byte offset at which the data area begins.
	DataOff uint64
}

// DataOffset returns the data area offset for an index of the given capacity.
func DataOffset(capacity uint32) uint64 {
	return HeaderSize + uint64(capacity)*SlotSize
}

// EncodeHeader encodes h into a fresh HeaderSize-byte buffer.
func EncodeHeader(h *Header) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic[:])
	binary.BigEndian.PutUint16(b[4:6], h.Version)
	binary.BigEndian.PutUint16(b[6:8], SlotSize)
	binary.BigEndian.PutUint32(b[8:12], h.Capacity)
	binary.BigEndian.PutUint32(b[liveCountOff:liveCountOff+4], h.Live)
	binary.BigEndian.PutUint64(b[16:24], h.IndexOff)
	binary.BigEndian.PutUint64(b[24:32], h.DataOff)
	return b
}

// EncodeLiveCount encodes a live entry count as it appears inside the header.
//
// The returned bytes belong at offset LiveCountOffset.
func EncodeLiveCount(live uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, live)
	return b
}

// LiveCountOffset returns the absolute byte offset of the header's live
// entry count.
func LiveCountOffset() uint64 { return liveCountOff }

// DecodeHeader decodes a header from b, which must hold at least HeaderSize
// bytes.
//
// DecodeHeader validates the magic signature, the format version, and the
// header's internal geometry.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, errors.Errorf("header record too short (%d bytes)", len(b))
	}
	if b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] || b[3] != Magic[3] {
		return h, ErrBadMagic
	}

	h.Version = binary.BigEndian.Uint16(b[4:6])
	if h.Version != Version {
		return h, errors.Wrapf(ErrUnsupportedVersion, "version %d", h.Version)
	}
	if ss := binary.BigEndian.Uint16(b[6:8]); ss != SlotSize {
		return h, &CorruptSlotError{Slot: -1, Reason: "unexpected slot size"}
	}

	h.Capacity = binary.BigEndian.Uint32(b[8:12])
	h.Live = binary.BigEndian.Uint32(b[liveCountOff : liveCountOff+4])
	h.IndexOff = binary.BigEndian.Uint64(b[16:24])
	h.DataOff = binary.BigEndian.Uint64(b[24:32])

	switch {
	case h.IndexOff != HeaderSize:
		return h, &CorruptSlotError{Slot: -1, Reason: "index table not adjacent to header"}
	case h.DataOff != DataOffset(h.Capacity):
		return h, &CorruptSlotError{Slot: -1, Reason: "data offset disagrees with index capacity"}
	case h.Live > h.Capacity:
		return h, &CorruptSlotError{Slot: -1, Reason: "live count exceeds capacity"}
	}
	return h, nil
}

// Descriptor locates and describes one entry's payload in the data area.
type Descriptor struct {
	// Offset is the absolute byte offset of the stored payload.
	Offset uint64

	// StoredLen is the on-disk payload length; for compressed entries this
	// is the compressed length.
	StoredLen uint64

	// UncompressedLen is the payload length after decompression. Equal to
	// StoredLen for uncompressed entries.
	UncompressedLen uint64

	// Scheme is the compression scheme applied to the payload.
	Scheme Scheme

	// Checksum is the CRC-32C of the uncompressed payload.
	Checksum uint32
}

// End returns the first byte offset past the stored payload.
func (d *Descriptor) End() uint64 { return d.Offset + d.StoredLen }

// Slot is one decoded position of the index table.
//
// Name, NameHash and Desc are meaningful only for occupied slots. Tombstones
// retain their name and hash on disk; this keeps removed entries visible to
// forensic tooling but has no semantic weight.
type Slot struct {
	State    SlotState
	Name     string
	NameHash uint32
	Desc     Descriptor
}

// SlotOffset returns the absolute byte offset of slot position pos.
func SlotOffset(h *Header, pos int) uint64 {
	return h.IndexOff + uint64(pos)*SlotSize
}

// EncodeSlot encodes s into a fresh SlotSize-byte buffer.
//
// Fails with ErrNameTooLong when the name does not fit the inline name
// field.
func EncodeSlot(s *Slot) ([]byte, error) {
	if len(s.Name) > NameCap {
		return nil, errors.Wrapf(ErrNameTooLong, "%q is %d bytes", s.Name, len(s.Name))
	}

	b := make([]byte, SlotSize)
	b[0] = byte(s.State)
	b[1] = byte(s.Desc.Scheme)
	binary.BigEndian.PutUint16(b[2:4], uint16(len(s.Name)))
	binary.BigEndian.PutUint32(b[4:8], s.NameHash)
	binary.BigEndian.PutUint64(b[8:16], s.Desc.Offset)
	binary.BigEndian.PutUint64(b[16:24], s.Desc.StoredLen)
	binary.BigEndian.PutUint64(b[24:32], s.Desc.UncompressedLen)
	binary.BigEndian.PutUint32(b[32:36], s.Desc.Checksum)
	copy(b[40:], s.Name)
	return b, nil
}

// DecodeSlot decodes a slot record from b, which must hold at least SlotSize
// bytes.
//
// DecodeSlot validates record-level consistency only; bounds checks against
// the surrounding archive belong to the decode engine.
func DecodeSlot(b []byte) (Slot, error) {
	var s Slot
	if len(b) < SlotSize {
		return s, errors.Errorf("slot record too short (%d bytes)", len(b))
	}

	s.State = SlotState(b[0])
	switch s.State {
	case SlotEmpty, SlotOccupied, SlotTombstone:
	default:
		return s, &CorruptSlotError{Reason: "unknown slot state"}
	}
	if s.State == SlotEmpty {
		return s, nil
	}

	s.Desc.Scheme = Scheme(b[1])
	if err := s.Desc.Scheme.Valid(); err != nil {
		return s, &CorruptSlotError{Reason: "unknown compression scheme"}
	}

	nameLen := binary.BigEndian.Uint16(b[2:4])
	if nameLen > NameCap {
		return s, &CorruptSlotError{Reason: "name length exceeds slot capacity"}
	}
	s.Name = string(b[40 : 40+nameLen])
	s.NameHash = binary.BigEndian.Uint32(b[4:8])
	s.Desc.Offset = binary.BigEndian.Uint64(b[8:16])
	s.Desc.StoredLen = binary.BigEndian.Uint64(b[16:24])
	s.Desc.UncompressedLen = binary.BigEndian.Uint64(b[24:32])
	s.Desc.Checksum = binary.BigEndian.Uint32(b[32:36])

	if s.State == SlotOccupied {
		if s.NameHash != NameHash(s.Name) {
			return s, &CorruptSlotError{Reason: "stored name hash disagrees with name"}
		}
		if s.Desc.Scheme == SchemeNone && s.Desc.StoredLen != s.Desc.UncompressedLen {
			return s, &CorruptSlotError{Reason: "stored and uncompressed lengths differ on raw entry"}
		}
	}
	return s, nil
}

// Table is a fully decoded header and index.
type Table struct {
	Header Header
	Slots  []Slot
}

// EncodeIndex encodes all slots of t into a single contiguous index image.
func EncodeIndex(t *Table) ([]byte, error) {
	img := make([]byte, 0, int(t.Header.Capacity)*SlotSize)
	for i := range t.Slots {
		rec, err := EncodeSlot(&t.Slots[i])
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", i)
		}
		img = append(img, rec...)
	}
	return img, nil
}
