// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package cli implements the pakarc command-line tool.
//
// Each subcommand translates into one or more archive handle calls. A
// subcommand that operates on several entries validates all of them before
// touching any, so a failing command never partially applies.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/mstreek/pakarc/archive"
	"github.com/mstreek/pakarc/format"
	"github.com/mstreek/pakarc/support/fmtutil"
	"github.com/mstreek/pakarc/support/logging"
)

const usageText = `Usage: pakarc [-v] <command> [flags] <archive> ...

Commands:
  list     [-l] <archive>                   List entry names.
  extract  [-C dir] <archive> <name>...     Extract entries to files.
  add      [-c scheme] [-r] <archive> <file>...
                                            Add files as entries.
  remove   <archive> <name>...              Remove entries.
  rename   <archive> <old> <new>            Rename an entry.
  repack   <archive>                        Defragment and shrink the archive.
  stat     <archive> [name]                 Show archive or entry details.
`

type app struct {
	out    io.Writer
	errOut io.Writer
	logger logging.L
}

// Main runs the tool with the given arguments (excluding the program name)
// and returns its exit code.
func Main(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, out, errOut io.Writer) int {
	global := pflag.NewFlagSet("pakarc", pflag.ContinueOnError)
	global.SetOutput(errOut)
	verbose := global.BoolP("verbose", "v", false, "Enable verbose logging.")
	global.SetInterspersed(false)
	if err := global.Parse(args); err != nil {
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(errOut, usageText)
		return 2
	}

	a := &app{out: out, errOut: errOut, logger: logging.ToWriter(errOut, *verbose)}
	err := a.dispatch(rest[0], rest[1:])
	switch {
	case err == errUsage:
		fmt.Fprint(errOut, usageText)
		return 2
	case err != nil:
		fmt.Fprintf(errOut, "pakarc: %s: %s\n", errorKind(err), err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func (a *app) dispatch(cmd string, args []string) error {
	switch cmd {
	case "list":
		return a.cmdList(args)
	case "extract":
		return a.cmdExtract(args)
	case "add":
		return a.cmdAdd(args)
	case "remove":
		return a.cmdRemove(args)
	case "rename":
		return a.cmdRename(args)
	case "repack":
		return a.cmdRepack(args)
	case "stat":
		return a.cmdStat(args)
	case "help", "-h", "--help":
		return errUsage
	}
	fmt.Fprintf(a.errOut, "pakarc: unknown command %q\n", cmd)
	return errUsage
}

// errorKind names the class of a failure for the user.
func errorKind(err error) string {
	switch cause := errors.Cause(err); {
	case cause == archive.ErrNotFound:
		return "not found"
	case cause == archive.ErrAlreadyExists:
		return "already exists"
	case cause == archive.ErrReadOnly:
		return "read-only"
	case cause == archive.ErrCompressionFailed:
		return "compression failed"
	case cause == format.ErrBadMagic:
		return "not an archive"
	case cause == format.ErrUnsupportedVersion:
		return "unsupported version"
	case cause == format.ErrNameTooLong:
		return "name too long"
	default:
		if _, ok := cause.(*format.CorruptSlotError); ok {
			return "corrupt archive"
		}
		if _, ok := cause.(*format.IntegrityError); ok {
			return "integrity mismatch"
		}
		return "error"
	}
}

func (a *app) openRead(path string) (*archive.Archive, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	arc, err := archive.Open(f, &archive.Options{Logger: a.logger})
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "opening %q", path)
	}
	return arc, f, nil
}

// openWrite opens path as a mutable archive, creating an empty archive
// when the file does not exist or is empty.
func (a *app) openWrite(path string) (*archive.Mutable, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	var arc *archive.Mutable
	if st.Size() == 0 {
		arc, err = archive.Create(f, &archive.Options{Logger: a.logger})
	} else {
		arc, err = archive.OpenMutable(f, &archive.Options{Logger: a.logger})
	}
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "opening %q", path)
	}
	return arc, f, nil
}

func (a *app) cmdList(args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	long := fs.BoolP("long", "l", false, "Show sizes and compression schemes.")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	arc, f, err := a.openRead(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	if !*long {
		for _, name := range arc.Names() {
			fmt.Fprintln(a.out, name)
		}
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 2, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tSTORED\tSCHEME")
	for it := arc.Entries(); it.Next(); {
		e := it.Entry()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Name, fmtutil.Size(e.Size), fmtutil.Size(e.StoredSize), e.Scheme)
	}
	return tw.Flush()
}

func (a *app) cmdExtract(args []string) error {
	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	destDir := fs.StringP("directory", "C", ".", "Directory to extract into.")
	if err := fs.Parse(args); err != nil || fs.NArg() < 2 {
		return errUsage
	}

	arc, f, err := a.openRead(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	names := fs.Args()[1:]
	for _, name := range names {
		if !arc.Contains(name) {
			return errors.Wrapf(archive.ErrNotFound, "%q", name)
		}
	}

	for _, name := range names {
		dest := filepath.Join(*destDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		w, err := os.Create(dest)
		if err != nil {
			return err
		}
		err = arc.WriteTo(name, w)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		a.logger.Infof("extracted %q to %q", name, dest)
	}
	return nil
}

func (a *app) cmdAdd(args []string) error {
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	scheme := format.SchemeFlag(format.SchemeNone)
	fs.VarP(&scheme, "compress", "c",
		fmt.Sprintf("Compression scheme, one of: %s.", format.SchemeFlagValues()))
	replace := fs.BoolP("replace", "r", false, "Replace entries that already exist.")
	if err := fs.Parse(args); err != nil || fs.NArg() < 2 {
		return errUsage
	}

	paths := fs.Args()[1:]
	payloads := make([][]byte, len(paths))
	for i, p := range paths {
		var err error
		if payloads[i], err = os.ReadFile(p); err != nil {
			return err
		}
	}

	arc, f, err := a.openWrite(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	// Validate every target up front so a late clash cannot leave the
	// command half applied.
	if !*replace {
		for _, p := range paths {
			if name := filepath.ToSlash(p); arc.Contains(name) {
				return errors.Wrapf(archive.ErrAlreadyExists, "%q", name)
			}
		}
	}

	for i, p := range paths {
		name := filepath.ToSlash(p)
		if *replace {
			err = arc.InsertOrReplace(name, payloads[i], scheme.Value())
		} else {
			err = arc.Insert(name, payloads[i], scheme.Value())
		}
		if err != nil {
			return err
		}
	}
	return arc.Flush()
}

func (a *app) cmdRemove(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	arc, f, err := a.openWrite(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	names := args[1:]
	for _, name := range names {
		if !arc.Contains(name) {
			return errors.Wrapf(archive.ErrNotFound, "%q", name)
		}
	}
	for _, name := range names {
		if _, err := arc.Remove(name); err != nil {
			return err
		}
	}
	return arc.Flush()
}

func (a *app) cmdRename(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	arc, f, err := a.openWrite(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if err := arc.Rename(args[1], args[2]); err != nil {
		return err
	}
	return arc.Flush()
}

func (a *app) cmdRepack(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	arc, f, err := a.openWrite(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	before := arc.Stats()
	if err := arc.Repack(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "repacked: %d entries, reclaimed %s in %d fragments\n",
		before.Entries, fmtutil.Size(before.FreeBytes), before.Fragments)
	return nil
}

func (a *app) cmdStat(args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return errUsage
	}
	arc, f, err := a.openRead(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	tw := tabwriter.NewWriter(a.out, 2, 2, 2, ' ', 0)
	defer tw.Flush()

	if len(args) == 2 {
		info, err := arc.Stat(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "name:\t%s\n", info.Name)
		fmt.Fprintf(tw, "size:\t%s\n", fmtutil.Size(info.Size))
		fmt.Fprintf(tw, "stored:\t%s\n", fmtutil.Size(info.StoredSize))
		fmt.Fprintf(tw, "scheme:\t%s\n", info.Scheme)
		fmt.Fprintf(tw, "checksum:\t%08x\n", info.Checksum)
		return nil
	}

	st := arc.Stats()
	fmt.Fprintf(tw, "entries:\t%d\n", st.Entries)
	fmt.Fprintf(tw, "capacity:\t%d slots\n", st.Capacity)
	fmt.Fprintf(tw, "data:\t%s\n", fmtutil.Size(st.DataBytes))
	fmt.Fprintf(tw, "free:\t%s in %d fragments\n", fmtutil.Size(st.FreeBytes), st.Fragments)
	return nil
}
