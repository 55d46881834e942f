// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package format

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Scheme identifies the compression applied to an entry payload, as encoded
// in the entry's index slot.
type Scheme uint8

// Supported compression schemes.
const (
	// SchemeNone stores the payload verbatim.
	SchemeNone Scheme = iota
	// SchemeDeflate stores the payload as a zlib stream.
	SchemeDeflate
	// SchemeSnappy stores the payload as a snappy block.
	SchemeSnappy
	// SchemeLZ4 stores the payload as an lz4 frame.
	SchemeLZ4

	schemeMax
)

var schemeNames = map[Scheme]string{
	SchemeNone:    "none",
	SchemeDeflate: "deflate",
	SchemeSnappy:  "snappy",
	SchemeLZ4:     "lz4",
}

func (s Scheme) String() string {
	if n, ok := schemeNames[s]; ok {
		return n
	}
	return "unknown"
}

// Valid returns nil if s is a supported scheme.
func (s Scheme) Valid() error {
	if s < schemeMax {
		return nil
	}
	return errors.Errorf("unknown compression scheme %d", uint8(s))
}

// ParseScheme parses a scheme name as accepted on the command line.
func ParseScheme(v string) (Scheme, error) {
	for s, n := range schemeNames {
		if n == v {
			return s, nil
		}
	}
	return SchemeNone, errors.Errorf("unknown compression scheme %q", v)
}

// Compress returns the stored form of p under s.
//
// SchemeNone returns p unchanged.
func (s Scheme) Compress(p []byte) ([]byte, error) {
	switch s {
	case SchemeNone:
		return p, nil

	case SchemeDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, errors.Wrap(err, "deflating payload")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Wrap(err, "finishing deflate stream")
		}
		return buf.Bytes(), nil

	case SchemeSnappy:
		return snappy.Encode(nil, p), nil

	case SchemeLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, errors.Wrap(err, "lz4-compressing payload")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Wrap(err, "finishing lz4 frame")
		}
		return buf.Bytes(), nil
	}
	return nil, s.Valid()
}

// Decompress recovers exactly expected bytes of payload from its stored
// form p.
//
// A stream that decodes to any other length, or that fails to decode at all,
// is reported as corruption.
func (s Scheme) Decompress(p []byte, expected int) ([]byte, error) {
	switch s {
	case SchemeNone:
		if len(p) != expected {
			return nil, &IntegrityError{Reason: "raw payload length mismatch"}
		}
		return p, nil

	case SchemeDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, errors.Wrap(err, "opening deflate stream")
		}
		defer zr.Close()
		return readExpected(zr, expected)

	case SchemeSnappy:
		out, err := snappy.Decode(nil, p)
		if err != nil {
			return nil, errors.Wrap(err, "decoding snappy block")
		}
		if len(out) != expected {
			return nil, &IntegrityError{Reason: "snappy block length mismatch"}
		}
		return out, nil

	case SchemeLZ4:
		return readExpected(lz4.NewReader(bytes.NewReader(p)), expected)
	}
	return nil, s.Valid()
}

// readExpected drains a decompressor, requiring it to produce exactly
// expected bytes.
func readExpected(r io.Reader, expected int) ([]byte, error) {
	out := make([]byte, expected)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "decompressing payload")
	}
	var trailer [1]byte
	if n, _ := r.Read(trailer[:]); n != 0 {
		return nil, &IntegrityError{Reason: "decompressed payload longer than recorded"}
	}
	return out, nil
}
