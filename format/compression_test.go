// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package format

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scheme", func() {
	compressible := bytes.Repeat([]byte("pakarc "), 1000)

	DescribeTable("round-trips a payload",
		func(s Scheme) {
			stored, err := s.Compress(compressible)
			Expect(err).ToNot(HaveOccurred())

			out, err := s.Decompress(stored, len(compressible))
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(compressible))
		},
		Entry("none", SchemeNone),
		Entry("deflate", SchemeDeflate),
		Entry("snappy", SchemeSnappy),
		Entry("lz4", SchemeLZ4),
	)

	DescribeTable("shrinks a repetitive payload",
		func(s Scheme) {
			stored, err := s.Compress(compressible)
			Expect(err).ToNot(HaveOccurred())
			Expect(len(stored)).To(BeNumerically("<", len(compressible)))
		},
		Entry("deflate", SchemeDeflate),
		Entry("snappy", SchemeSnappy),
		Entry("lz4", SchemeLZ4),
	)

	DescribeTable("round-trips an empty payload",
		func(s Scheme) {
			stored, err := s.Compress(nil)
			Expect(err).ToNot(HaveOccurred())

			out, err := s.Decompress(stored, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(BeEmpty())
		},
		Entry("none", SchemeNone),
		Entry("deflate", SchemeDeflate),
		Entry("snappy", SchemeSnappy),
		Entry("lz4", SchemeLZ4),
	)

	It("rejects a decompressed size that disagrees with the descriptor", func() {
		stored, err := SchemeDeflate.Compress(compressible)
		Expect(err).ToNot(HaveOccurred())

		_, err = SchemeDeflate.Decompress(stored, len(compressible)-1)
		Expect(err).To(HaveOccurred())
	})

	It("rejects garbage stored bytes", func() {
		_, err := SchemeDeflate.Decompress([]byte("not a zlib stream"), 64)
		Expect(err).To(HaveOccurred())
	})

	It("parses every scheme name it prints", func() {
		for s := Scheme(0); s < schemeMax; s++ {
			parsed, err := ParseScheme(s.String())
			Expect(err).ToNot(HaveOccurred())
			Expect(parsed).To(Equal(s))
		}
	})

	It("rejects an unknown scheme name", func() {
		_, err := ParseScheme("zstd")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown scheme value", func() {
		Expect(schemeMax.Valid()).To(HaveOccurred())
	})
})

var _ = Describe("SchemeFlag", func() {
	It("sets from a valid name", func() {
		var f SchemeFlag
		Expect(f.Set("snappy")).To(Succeed())
		Expect(f.Value()).To(Equal(SchemeSnappy))
	})

	It("rejects an invalid name", func() {
		var f SchemeFlag
		Expect(f.Set("bogus")).ToNot(Succeed())
	})
})
