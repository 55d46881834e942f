// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package format

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBadMagic is returned when decoding input that does not begin with the
// archive magic signature.
var ErrBadMagic = errors.New("not a pakarc archive (bad magic)")

// ErrUnsupportedVersion is returned when an archive declares a format
// version this package cannot read.
var ErrUnsupportedVersion = errors.New("unsupported archive version")

// ErrNameTooLong is returned when an entry name exceeds NameCap bytes.
var ErrNameTooLong = errors.New("entry name too long")

// CorruptSlotError reports structurally inconsistent archive metadata: a
// slot whose declared sizes or state cannot be reconciled with the archive's
// bounds, or a header whose geometry is self-contradictory (Slot == -1).
type CorruptSlotError struct {
	// Slot is the index table position of the offending slot, or -1 when
	// the corruption is in the header.
	Slot int

	// Reason describes the inconsistency.
	Reason string
}

func (e *CorruptSlotError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("corrupt archive header: %s", e.Reason)
	}
	return fmt.Sprintf("corrupt index slot %d: %s", e.Slot, e.Reason)
}

// IntegrityError reports payload bytes that do not match their recorded
// checksum or uncompressed length.
type IntegrityError struct {
	// Reason describes the mismatch.
	Reason string

	// WantSum and GotSum are the recorded and computed CRC-32C values when
	// the mismatch is a checksum failure; both are zero otherwise.
	WantSum, GotSum uint32
}

func (e *IntegrityError) Error() string {
	if e.WantSum != e.GotSum {
		return fmt.Sprintf("entry integrity failure: %s (recorded %08x, computed %08x)",
			e.Reason, e.WantSum, e.GotSum)
	}
	return fmt.Sprintf("entry integrity failure: %s", e.Reason)
}
