// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"github.com/mstreek/pakarc/format"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func occupied(name string) format.Slot {
	return format.Slot{
		State:    format.SlotOccupied,
		Name:     name,
		NameHash: format.NameHash(name),
	}
}

var _ = Describe("Slot index", func() {
	const capacity = 8

	var idx *index

	BeforeEach(func() {
		idx = newIndex(capacity)
	})

	insert := func(name string) uint32 {
		pos, err := idx.insertPos(name)
		Expect(err).ToNot(HaveOccurred())
		idx.setOccupied(pos, occupied(name))
		return pos
	}

	It("finds what it inserted", func() {
		pos := insert("a.txt")
		found, ok := idx.lookup("a.txt")
		Expect(ok).To(BeTrue())
		Expect(found).To(Equal(pos))

		_, ok = idx.lookup("b.txt")
		Expect(ok).To(BeFalse())
	})

	It("rejects inserting a present name", func() {
		insert("a.txt")
		_, err := idx.insertPos("a.txt")
		Expect(err).To(Equal(ErrAlreadyExists))
	})

	It("reuses the first tombstone on the probe chain", func() {
		names := collidingNames(capacity, 3)
		positions := make([]uint32, len(names))
		for i, name := range names {
			positions[i] = insert(name)
		}

		idx.setTombstone(positions[1])
		_, ok := idx.lookup(names[1])
		Expect(ok).To(BeFalse())

		// The chain still reaches past the tombstone.
		found, ok := idx.lookup(names[2])
		Expect(ok).To(BeTrue())
		Expect(found).To(Equal(positions[2]))

		// A colliding insert lands on the tombstone.
		pos, err := idx.insertPos(names[1])
		Expect(err).ToNot(HaveOccurred())
		Expect(pos).To(Equal(positions[1]))
	})

	It("counts tombstones against the load bound", func() {
		used := idx.used
		insert("a.txt")
		pos, _ := idx.lookup("a.txt")
		idx.setTombstone(pos)
		Expect(idx.live).To(BeZero())
		Expect(idx.used).To(Equal(used + 1))
	})

	It("grows at three quarters load", func() {
		for _, name := range collidingNames(capacity, 5) {
			insert(name)
		}
		Expect(idx.needsGrow()).To(BeFalse())
		insert("one-more")
		Expect(idx.needsGrow()).To(BeTrue())
	})

	It("drops tombstones when rehashed", func() {
		names := collidingNames(capacity, 3)
		for _, name := range names {
			insert(name)
		}
		pos, _ := idx.lookup(names[0])
		idx.setTombstone(pos)

		next := idx.rehashed(capacity * 2)
		Expect(next.live).To(Equal(uint32(2)))
		Expect(next.used).To(Equal(uint32(2)))
		for _, name := range names[1:] {
			_, ok := next.lookup(name)
			Expect(ok).To(BeTrue())
		}
		_, ok := next.lookup(names[0])
		Expect(ok).To(BeFalse())
	})
})
