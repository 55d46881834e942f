// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package fmtutil

import (
	"fmt"
)

// Size is a byte count that renders as a human-readable string with a
// binary unit suffix.
type Size uint64

var sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

func (s Size) String() string {
	v := float64(s)
	for _, unit := range sizeUnits {
		if v < 1024 || unit == sizeUnits[len(sizeUnits)-1] {
			if unit == "B" {
				return fmt.Sprintf("%d %s", uint64(v), unit)
			}
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024
	}
	panic("unreachable")
}
