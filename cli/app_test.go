// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("pakarc tool", func() {
	var dir string
	var arcPath string

	exec := func(args ...string) (int, string, string) {
		var out, errOut bytes.Buffer
		code := run(args, &out, &errOut)
		return code, out.String(), errOut.String()
	}

	writeFile := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pakarc-cli-test")
		Expect(err).ToNot(HaveOccurred())
		arcPath = filepath.Join(dir, "test.pak")
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("adds, lists and extracts entries", func() {
		a := writeFile("a.txt", "alpha")
		b := writeFile("b.txt", "bravo bravo bravo")

		code, _, errOut := exec("add", arcPath, a, b)
		Expect(code).To(Equal(0), errOut)

		code, out, _ := exec("list", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("a.txt"))
		Expect(out).To(ContainSubstring("b.txt"))

		dest := filepath.Join(dir, "out")
		code, _, errOut = exec("extract", "-C", dest, arcPath, filepath.ToSlash(a))
		Expect(code).To(Equal(0), errOut)

		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(filepath.ToSlash(a))))
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal([]byte("alpha")))
	})

	It("adds compressed entries", func() {
		p := writeFile("data.bin", string(bytes.Repeat([]byte("compress me "), 1000)))

		code, _, errOut := exec("add", "-c", "deflate", arcPath, p)
		Expect(code).To(Equal(0), errOut)

		code, out, _ := exec("stat", arcPath, filepath.ToSlash(p))
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("deflate"))
	})

	It("refuses to re-add an existing entry without --replace", func() {
		p := writeFile("a.txt", "alpha")

		code, _, _ := exec("add", arcPath, p)
		Expect(code).To(Equal(0))

		code, _, errOut := exec("add", arcPath, p)
		Expect(code).To(Equal(1))
		Expect(errOut).To(ContainSubstring("already exists"))

		code, _, _ = exec("add", "-r", arcPath, p)
		Expect(code).To(Equal(0))
	})

	It("removes entries and repacks", func() {
		a := writeFile("a.txt", "alpha")
		b := writeFile("b.txt", "bravo")

		code, _, _ := exec("add", arcPath, a, b)
		Expect(code).To(Equal(0))

		code, _, errOut := exec("remove", arcPath, filepath.ToSlash(a))
		Expect(code).To(Equal(0), errOut)

		code, out, _ := exec("list", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).ToNot(ContainSubstring("a.txt"))

		code, out, errOut = exec("repack", arcPath)
		Expect(code).To(Equal(0), errOut)
		Expect(out).To(ContainSubstring("repacked"))
	})

	It("does not partially apply a multi-file add", func() {
		a := writeFile("a.txt", "alpha")
		b := writeFile("b.txt", "bravo")
		code, _, _ := exec("add", arcPath, b)
		Expect(code).To(Equal(0))

		code, _, errOut := exec("add", arcPath, filepath.ToSlash(a), filepath.ToSlash(b))
		Expect(code).To(Equal(1))
		Expect(errOut).To(ContainSubstring("already exists"))

		code, out, _ := exec("list", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("b.txt"))
		Expect(out).ToNot(ContainSubstring("a.txt"))
	})

	It("does not partially apply a multi-entry removal", func() {
		a := writeFile("a.txt", "alpha")
		code, _, _ := exec("add", arcPath, a)
		Expect(code).To(Equal(0))

		code, _, errOut := exec("remove", arcPath, "missing", filepath.ToSlash(a))
		Expect(code).To(Equal(1))
		Expect(errOut).To(ContainSubstring("not found"))

		code, out, _ := exec("list", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("a.txt"))
	})

	It("renames entries", func() {
		a := writeFile("a.txt", "alpha")
		code, _, _ := exec("add", arcPath, a)
		Expect(code).To(Equal(0))

		code, _, errOut := exec("rename", arcPath, filepath.ToSlash(a), "renamed.txt")
		Expect(code).To(Equal(0), errOut)

		code, out, _ := exec("list", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("renamed.txt"))
	})

	It("reports archive statistics", func() {
		a := writeFile("a.txt", "alpha")
		code, _, _ := exec("add", arcPath, a)
		Expect(code).To(Equal(0))

		code, out, _ := exec("stat", arcPath)
		Expect(code).To(Equal(0))
		Expect(out).To(ContainSubstring("entries:"))
		Expect(out).To(ContainSubstring("capacity:"))
	})

	It("rejects a file that is not an archive", func() {
		bogus := writeFile("bogus.pak", "#!/bin/sh\n")

		code, _, errOut := exec("list", bogus)
		Expect(code).To(Equal(1))
		Expect(errOut).To(ContainSubstring("not an archive"))
	})

	It("prints usage for an unknown command", func() {
		code, _, errOut := exec("frobnicate")
		Expect(code).To(Equal(2))
		Expect(errOut).To(ContainSubstring("Usage:"))
	})
})

func TestCLI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing pakarc tool")
}
