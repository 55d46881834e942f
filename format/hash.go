// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package format

import "hash/crc32"

// FNV-1a parameters, 32-bit variant.
const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// NameHash returns the 32-bit FNV-1a hash of an entry name.
//
// The hash is part of the on-disk format: lookups use it modulo the index
// capacity to pick a probe start, so it must be stable across releases.
func NameHash(name string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= fnvPrime32
	}
	return h
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC-32C (Castagnoli) checksum of an entry's
// uncompressed payload.
func Checksum(p []byte) uint32 {
	return crc32.Checksum(p, castagnoli)
}

// ChecksumUpdate folds p into a running CRC-32C. A zero sum is the valid
// initial state.
func ChecksumUpdate(sum uint32, p []byte) uint32 {
	return crc32.Update(sum, castagnoli, p)
}
