// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"github.com/mstreek/pakarc/format"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Space allocator", func() {
	const base = 1024

	var a *allocator

	BeforeEach(func() {
		a = newAllocator(base)
	})

	It("extends the data area when no gap fits", func() {
		Expect(a.alloc(100)).To(Equal(uint64(base)))
		Expect(a.alloc(50)).To(Equal(uint64(base + 100)))
		Expect(a.end).To(Equal(uint64(base + 150)))
		Expect(a.compact()).To(BeTrue())
	})

	It("reuses the lowest gap that fits, splitting it", func() {
		a.alloc(100) // A
		a.alloc(200) // B
		a.alloc(100) // C
		a.free(base, 100)       // free A
		a.free(base+100, 200)   // free B; coalesces with A

		Expect(a.fragments()).To(Equal(1))
		Expect(a.freeBytes()).To(Equal(uint64(300)))

		// First fit: the 120-byte request splits the 300-byte gap.
		Expect(a.alloc(120)).To(Equal(uint64(base)))
		Expect(a.fragments()).To(Equal(1))
		Expect(a.freeBytes()).To(Equal(uint64(180)))
	})

	It("skips gaps that are too small", func() {
		a.alloc(50)  // A
		a.alloc(100) // B
		a.free(base, 50)

		Expect(a.alloc(80)).To(Equal(uint64(base + 150)))
		Expect(a.fragments()).To(Equal(1))
	})

	It("coalesces a freed range with both neighbors", func() {
		a.alloc(100) // A
		a.alloc(100) // B
		a.alloc(100) // C
		a.alloc(100) // D, keeps the end away

		a.free(base, 100)
		a.free(base+200, 100)
		Expect(a.fragments()).To(Equal(2))

		a.free(base+100, 100)
		Expect(a.fragments()).To(Equal(1))
		Expect(a.freeBytes()).To(Equal(uint64(300)))
	})

	It("releases a tail range by pulling the end back", func() {
		a.alloc(100) // A
		a.alloc(100) // B
		a.free(base+100, 100)

		Expect(a.end).To(Equal(uint64(base + 100)))
		Expect(a.fragments()).To(BeZero())
	})

	It("swallows an abutting gap when the tail is released", func() {
		a.alloc(100) // A
		a.alloc(100) // B
		a.alloc(100) // C
		a.free(base+100, 100) // gap in the middle
		a.free(base+200, 100) // tail abutting the gap

		Expect(a.end).To(Equal(uint64(base + 100)))
		Expect(a.fragments()).To(BeZero())
		Expect(a.compact()).To(BeTrue())
	})

	Describe("seeding", func() {
		It("derives gaps from live payload ranges", func() {
			err := a.seed(base, []format.Descriptor{
				{Offset: base + 50, StoredLen: 50},
				{Offset: base + 200, StoredLen: 100},
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(a.end).To(Equal(uint64(base + 300)))
			Expect(a.fragments()).To(Equal(2))
			Expect(a.freeBytes()).To(Equal(uint64(150)))
		})

		It("accepts an empty data area", func() {
			Expect(a.seed(base, nil)).To(Succeed())
			Expect(a.end).To(Equal(uint64(base)))
			Expect(a.compact()).To(BeTrue())
		})

		It("ignores zero-length payloads sharing an offset", func() {
			err := a.seed(base, []format.Descriptor{
				{Offset: base, StoredLen: 100},
				{Offset: base, StoredLen: 0},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(a.end).To(Equal(uint64(base + 100)))
			Expect(a.compact()).To(BeTrue())
		})

		It("rejects overlapping payload ranges", func() {
			err := a.seed(base, []format.Descriptor{
				{Offset: base, StoredLen: 100},
				{Offset: base + 50, StoredLen: 100},
			})
			Expect(err).To(BeAssignableToTypeOf(&format.CorruptSlotError{}))
		})
	})
})
