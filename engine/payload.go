// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package engine

import (
	"io"

	"github.com/pkg/errors"

	"github.com/mstreek/pakarc/format"
)

// PayloadChunkSize is how many stored bytes a payload program requests per
// suspension.
const PayloadChunkSize = 64 * 1024

// Payload reader states.
const (
	payloadSeek = iota
	payloadChunk
)

// PayloadReader streams one entry's payload into a caller-supplied sink.
//
// Uncompressed entries are streamed chunk by chunk without full buffering.
// Compressed entries are accumulated and handed to the compression scheme
// in one piece, since block codecs need the complete stored form.
//
// The reader verifies the descriptor's checksum and uncompressed length and
// fails with a format.IntegrityError on mismatch.
type PayloadReader struct {
	fsm
	state int

	desc format.Descriptor
	sink io.Writer

	remaining uint64
	streamed  uint64
	sum       uint32
	stored    []byte
}

// NewPayloadReader returns a reader for the payload described by desc,
// writing the decoded bytes to sink.
func NewPayloadReader(desc format.Descriptor, sink io.Writer) *PayloadReader {
	return &PayloadReader{
		desc:      desc,
		sink:      sink,
		remaining: desc.StoredLen,
	}
}

// Resume implements Program.
func (p *PayloadReader) Resume(res Result) Step {
	if p.done {
		return Step{Op: OpDone}
	}
	if res.Err != nil {
		return p.fail(res.Err)
	}

	switch p.state {
	case payloadSeek:
		if p.desc.Scheme != format.SchemeNone {
			p.stored = make([]byte, 0, p.desc.StoredLen)
		}
		if p.remaining == 0 {
			return p.verify()
		}
		p.state = payloadChunk
		return seekTo(p.desc.Offset)

	case payloadChunk:
		if res.Data != nil {
			if err := p.consume(res.Data); err != nil {
				return p.fail(err)
			}
		}
		if p.remaining == 0 {
			return p.verify()
		}
		n := p.remaining
		if n > PayloadChunkSize {
			n = PayloadChunkSize
		}
		p.remaining -= n
		return readExact(n)
	}
	panic("unreachable payload reader state")
}

// consume folds one chunk of stored bytes into the reader.
func (p *PayloadReader) consume(chunk []byte) error {
	if p.desc.Scheme != format.SchemeNone {
		p.stored = append(p.stored, chunk...)
		return nil
	}

	// Raw payloads stream straight through.
	p.sum = format.ChecksumUpdate(p.sum, chunk)
	p.streamed += uint64(len(chunk))
	if _, err := p.sink.Write(chunk); err != nil {
		return errors.Wrap(err, "writing entry payload to sink")
	}
	return nil
}

func (p *PayloadReader) verify() Step {
	if p.desc.Scheme == format.SchemeNone {
		if p.streamed != p.desc.UncompressedLen {
			return p.fail(&format.IntegrityError{Reason: "raw payload length mismatch"})
		}
		if p.sum != p.desc.Checksum {
			return p.fail(&format.IntegrityError{
				Reason:  "payload checksum mismatch",
				WantSum: p.desc.Checksum,
				GotSum:  p.sum,
			})
		}
		return p.finish()
	}

	out, err := p.desc.Scheme.Decompress(p.stored, int(p.desc.UncompressedLen))
	if err != nil {
		return p.fail(err)
	}
	if sum := format.Checksum(out); sum != p.desc.Checksum {
		return p.fail(&format.IntegrityError{
			Reason:  "payload checksum mismatch",
			WantSum: p.desc.Checksum,
			GotSum:  sum,
		})
	}
	if _, err := p.sink.Write(out); err != nil {
		return p.fail(errors.Wrap(err, "writing entry payload to sink"))
	}
	return p.finish()
}
