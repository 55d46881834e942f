// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"io"
	"testing"

	"github.com/mstreek/pakarc/format"
	"github.com/mstreek/pakarc/support/memstore"
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// drive runs p against an in-memory store, satisfying each step the way a
// transport adapter would.
func drive(s *memstore.Store, p Program) error {
	var res Result
	for {
		step := p.Resume(res)
		res = Result{}
		switch step.Op {
		case OpDone:
			return p.Err()

		case OpReadExact:
			buf := make([]byte, step.N)
			if _, err := io.ReadFull(s, buf); err != nil {
				res.Err = ErrUnexpectedEOF
			} else {
				res.Data = buf
			}

		case OpRead:
			buf := make([]byte, step.N)
			n, _ := io.ReadFull(s, buf)
			res.Data = buf[:n]

		case OpSeek:
			pos, err := s.Seek(step.Off, step.Whence)
			res.Pos, res.Err = uint64(pos), err

		case OpWrite:
			_, res.Err = s.Write(step.Data)

		case OpFill:
			b := make([]byte, step.N)
			for i := range b {
				b[i] = step.Value
			}
			_, res.Err = s.Write(b)

		case OpCopy:
			b := make([]byte, step.N)
			if _, err := s.Seek(int64(step.From), io.SeekStart); err != nil {
				res.Err = err
				break
			}
			if _, err := io.ReadFull(s, b); err != nil {
				res.Err = err
				break
			}
			if _, err := s.Seek(int64(step.To), io.SeekStart); err != nil {
				res.Err = err
				break
			}
			_, res.Err = s.Write(b)

		case OpTruncate:
			res.Err = s.Truncate(int64(step.N))
		}
	}
}

// buildArchive encodes a complete archive image holding the given named
// payloads, stored raw.
func buildArchive(capacity uint32, entries map[string][]byte) *memstore.Store {
	hdr := format.Header{
		Version:  format.Version,
		Capacity: capacity,
		IndexOff: format.HeaderSize,
		DataOff:  format.DataOffset(capacity),
	}

	slots := make([]format.Slot, capacity)
	payloads := bytes.Buffer{}
	for name, p := range entries {
		h := format.NameHash(name)
		slot := format.Slot{
			State:    format.SlotOccupied,
			Name:     name,
			NameHash: h,
			Desc: format.Descriptor{
				Offset:          hdr.DataOff + uint64(payloads.Len()),
				StoredLen:       uint64(len(p)),
				UncompressedLen: uint64(len(p)),
				Scheme:          format.SchemeNone,
				Checksum:        format.Checksum(p),
			},
		}
		payloads.Write(p)
		for i := uint32(0); ; i++ {
			pos := (h + i) % capacity
			if slots[pos].State == format.SlotEmpty {
				slots[pos] = slot
				break
			}
		}
		hdr.Live++
	}

	img, err := format.EncodeIndex(&format.Table{Header: hdr, Slots: slots})
	Expect(err).ToNot(HaveOccurred())

	var out bytes.Buffer
	out.Write(format.EncodeHeader(&hdr))
	out.Write(img)
	out.Write(payloads.Bytes())
	return memstore.New(out.Bytes())
}

var _ = Describe("TableParser", func() {
	It("decodes a populated archive", func() {
		s := buildArchive(8, map[string][]byte{
			"a.txt": []byte("alpha"),
			"b.txt": []byte("bravo"),
		})

		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())

		t := parser.Table()
		Expect(t.Header.Live).To(Equal(uint32(2)))
		Expect(t.Slots).To(HaveLen(8))
	})

	It("decodes an empty archive", func() {
		s := buildArchive(8, nil)

		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())
		Expect(parser.Table().Header.Live).To(BeZero())
	})

	It("fails with BadMagic on an altered signature", func() {
		s := buildArchive(8, nil)
		s.Bytes()[0] ^= 0xFF

		err := drive(s, NewTableParser())
		Expect(errors.Cause(err)).To(Equal(format.ErrBadMagic))
	})

	It("fails with UnexpectedEof on a store truncated mid-index", func() {
		s := buildArchive(8, nil)
		Expect(s.Truncate(int64(format.HeaderSize + 3*format.SlotSize/2))).To(Succeed())

		err := drive(s, NewTableParser())
		Expect(errors.Cause(err)).To(Equal(ErrUnexpectedEOF))
	})

	It("fails on a payload extending beyond the end of the store", func() {
		s := buildArchive(8, map[string][]byte{"a.txt": []byte("alpha")})
		Expect(s.Truncate(int64(format.DataOffset(8)) + 2)).To(Succeed())

		err := drive(s, NewTableParser())
		ce, ok := errors.Cause(err).(*format.CorruptSlotError)
		Expect(ok).To(BeTrue())
		Expect(ce.Slot).To(BeNumerically(">=", 0))
	})

	It("fails on a payload offset inside the index region", func() {
		s := buildArchive(8, map[string][]byte{"a.txt": []byte("alpha")})

		// Rewrite the occupied slot to point into the index area.
		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())
		for pos, slot := range parser.Table().Slots {
			if slot.State != format.SlotOccupied {
				continue
			}
			slot.Desc.Offset = format.HeaderSize
			rec, err := format.EncodeSlot(&slot)
			Expect(err).ToNot(HaveOccurred())
			off := format.SlotOffset(&parser.Table().Header, pos)
			copy(s.Bytes()[off:], rec)
		}

		err := drive(s, NewTableParser())
		Expect(errors.Cause(err)).To(BeAssignableToTypeOf(&format.CorruptSlotError{}))
	})

	It("fails when the header live count disagrees with the slots", func() {
		s := buildArchive(8, map[string][]byte{"a.txt": []byte("alpha")})
		copy(s.Bytes()[format.LiveCountOffset():], format.EncodeLiveCount(5))

		err := drive(s, NewTableParser())
		Expect(errors.Cause(err)).To(BeAssignableToTypeOf(&format.CorruptSlotError{}))
	})
})

var _ = Describe("MagicSniffer", func() {
	It("recognizes an archive", func() {
		sniffer := NewMagicSniffer()
		Expect(drive(buildArchive(4, nil), sniffer)).To(Succeed())
		Expect(sniffer.IsArchive()).To(BeTrue())
	})

	It("rejects other content", func() {
		sniffer := NewMagicSniffer()
		Expect(drive(memstore.New([]byte("#!/bin/sh\n")), sniffer)).To(Succeed())
		Expect(sniffer.IsArchive()).To(BeFalse())
	})

	It("tolerates a store shorter than the signature", func() {
		sniffer := NewMagicSniffer()
		Expect(drive(memstore.New([]byte("P")), sniffer)).To(Succeed())
		Expect(sniffer.IsArchive()).To(BeFalse())
	})
})

var _ = Describe("PayloadReader", func() {
	It("streams a raw payload and verifies its checksum", func() {
		payload := bytes.Repeat([]byte("stream me "), 20000)
		s := buildArchive(4, map[string][]byte{"big.bin": payload})

		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())

		var desc format.Descriptor
		for _, slot := range parser.Table().Slots {
			if slot.State == format.SlotOccupied {
				desc = slot.Desc
			}
		}

		var sink bytes.Buffer
		Expect(drive(s, NewPayloadReader(desc, &sink))).To(Succeed())
		Expect(sink.Bytes()).To(Equal(payload))
	})

	It("fails with an integrity error on a flipped payload byte", func() {
		payload := []byte("some payload bytes")
		s := buildArchive(4, map[string][]byte{"a.txt": payload})

		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())
		var desc format.Descriptor
		for _, slot := range parser.Table().Slots {
			if slot.State == format.SlotOccupied {
				desc = slot.Desc
			}
		}
		s.Bytes()[desc.Offset] ^= 0xFF

		var sink bytes.Buffer
		err := drive(s, NewPayloadReader(desc, &sink))
		Expect(errors.Cause(err)).To(BeAssignableToTypeOf(&format.IntegrityError{}))
	})
})

var _ = Describe("TableWriter", func() {
	It("writes an archive the parser accepts", func() {
		hdr := format.Header{
			Version:  format.Version,
			Capacity: 8,
			IndexOff: format.HeaderSize,
			DataOff:  format.DataOffset(8),
		}
		s := memstore.New(nil)
		Expect(drive(s, NewTableWriter(hdr))).To(Succeed())
		Expect(s.Len()).To(Equal(int(hdr.DataOff)))

		parser := NewTableParser()
		Expect(drive(s, parser)).To(Succeed())
		Expect(parser.Table().Header).To(Equal(hdr))
	})
})

var _ = Describe("Update", func() {
	It("applies positioned writes in order", func() {
		s := memstore.New([]byte("..........")) // 10 bytes
		err := drive(s, NewUpdate(
			WriteAt{Off: 0, Data: []byte("ab")},
			WriteAt{Off: 8, Data: []byte("yz")},
			WriteAt{Off: 1, Data: []byte("B")},
		))
		Expect(err).To(Succeed())
		Expect(s.Bytes()).To(Equal([]byte("aB......yz")))
	})

	It("passes transport errors through unmodified", func() {
		boom := errors.New("boom")
		p := NewUpdate(WriteAt{Off: 0, Data: []byte("x")})
		p.Resume(Result{})
		step := p.Resume(Result{Err: boom})
		Expect(step.Op).To(Equal(OpDone))
		Expect(p.Err()).To(Equal(boom))
	})
})

func TestEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing decode engine")
}
