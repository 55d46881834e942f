// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package engine

import (
	"github.com/mstreek/pakarc/format"
)

// Parser states.
const (
	parseStart = iota
	parseLength
	parseHeaderSeek
	parseHeader
	parseSlots
)

// TableParser decodes an archive's header and full index table.
//
// Drive it to completion and collect the decoded table with Table.
type TableParser struct {
	fsm
	state int

	fileLen uint64
	table   format.Table
	next    int
	live    uint32
}

// NewTableParser returns a parser positioned at the start of an archive.
func NewTableParser() *TableParser {
	return &TableParser{}
}

// Table returns the decoded table. Valid only after the parser completed
// without error.
func (p *TableParser) Table() *format.Table { return &p.table }

// Resume implements Program.
func (p *TableParser) Resume(res Result) Step {
	if p.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return p.fail(res.Err)
	}

	switch p.state {
	case parseStart:
		// Learn the store length first; every bounds check below needs it.
		p.state = parseLength
		return seekEnd()

	case parseLength:
		p.fileLen = res.Pos
		p.state = parseHeaderSeek
		return seekTo(0)

	case parseHeaderSeek:
		p.state = parseHeader
		return readExact(format.HeaderSize)

	case parseHeader:
		hdr, err := format.DecodeHeader(res.Data)
		if err != nil {
			return p.fail(err)
		}
		p.table.Header = hdr
		p.table.Slots = make([]format.Slot, 0, hdr.Capacity)
		if hdr.Capacity == 0 {
			return p.verifyLive()
		}
		p.state = parseSlots
		return readExact(format.SlotSize)

	case parseSlots:
		slot, err := format.DecodeSlot(res.Data)
		if err != nil {
			if ce, ok := err.(*format.CorruptSlotError); ok {
				ce.Slot = p.next
			}
			return p.fail(err)
		}
		if slot.State == format.SlotOccupied {
			if err := p.checkBounds(&slot); err != nil {
				return p.fail(err)
			}
			p.live++
		}
		p.table.Slots = append(p.table.Slots, slot)
		p.next++
		if p.next < int(p.table.Header.Capacity) {
			return readExact(format.SlotSize)
		}
		return p.verifyLive()
	}
	panic("unreachable table parser state")
}

// checkBounds validates an occupied slot's payload range against the
// archive's data area.
func (p *TableParser) checkBounds(slot *format.Slot) error {
	d := &slot.Desc
	switch {
	case d.Offset < p.table.Header.DataOff:
		return &format.CorruptSlotError{Slot: p.next, Reason: "payload begins before data area"}
	case d.StoredLen > p.fileLen || d.Offset > p.fileLen-d.StoredLen:
		return &format.CorruptSlotError{Slot: p.next, Reason: "payload extends beyond end of file"}
	}
	return nil
}

func (p *TableParser) verifyLive() Step {
	if p.live != p.table.Header.Live {
		return p.fail(&format.CorruptSlotError{
			Slot: -1, Reason: "header live count disagrees with occupied slots",
		})
	}
	return p.finish()
}

// MagicSniffer checks whether a store begins with the archive magic.
//
// Unlike TableParser it tolerates stores shorter than the magic itself,
// reporting them as simply not archives.
type MagicSniffer struct {
	fsm
	state int
	isPak bool
}

// NewMagicSniffer returns a sniffer positioned at the start of a store.
func NewMagicSniffer() *MagicSniffer { return &MagicSniffer{} }

// IsArchive reports whether the sniffed store began with the archive magic.
// Valid only after the sniffer completed without error.
func (m *MagicSniffer) IsArchive() bool { return m.isPak }

// Resume implements Program.
func (m *MagicSniffer) Resume(res Result) Step {
	if m.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return m.fail(res.Err)
	}

	switch m.state {
	case 0:
		m.state = 1
		return seekTo(0)
	case 1:
		m.state = 2
		return read(uint64(len(format.Magic)))
	case 2:
		m.isPak = len(res.Data) == len(format.Magic) &&
			string(res.Data) == string(format.Magic[:])
		return m.finish()
	}
	panic("unreachable magic sniffer state")
}
