// Package fileio is the host side of guest file access: a table of open
// host files addressed by small reference numbers, the MPW runtime device
// routines (Sy*) and the File Manager parameter block calls.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/macpath"
	"github.com/colorfulnotion/mosrun/memory"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Standard stream reference numbers.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// File is one entry of the host file table.
type File struct {
	Name string

	// Allocated entries were opened by the guest and are released on close.
	Allocated bool

	f *os.File
	r io.Reader
	w io.Writer

	// text streams convert between host and Mac line ends and encodings
	text    bool
	pending []byte
}

// Interactive reports whether the file is a terminal.
func (f *File) Interactive() bool {
	return f.f != nil && term.IsTerminal(int(f.f.Fd()))
}

func (f *File) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, unix.EBADF
	}
	return f.r.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	if f.w == nil {
		return 0, unix.EBADF
	}
	return f.w.Write(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.f == nil {
		return -1, unix.ESPIPE
	}
	return f.f.Seek(offset, whence)
}

// Streams are the host ends of the guest's standard files.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// RawStdout passes stdout data through unconverted.
	RawStdout bool
}

// HostStreams returns the process's own standard files.
func HostStreams(rawStdout bool) Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, RawStdout: rawStdout}
}

// Table maps guest reference numbers to host files. Reference numbers are
// indexes into the table and never host descriptors.
type Table struct {
	mem   *memory.Arena
	files []*File
}

// NewTable creates a table whose first three entries are the standard
// streams.
func NewTable(mem *memory.Arena, s Streams) *Table {
	std := func(name string, r io.Reader, w io.Writer, text bool) *File {
		f := &File{Name: name, r: r, w: w, text: text}
		if r != nil {
			f.f, _ = r.(*os.File)
		} else if w != nil {
			f.f, _ = w.(*os.File)
		}
		return f
	}
	return &Table{
		mem: mem,
		files: []*File{
			std("/dev/stdin", s.Stdin, nil, !s.RawStdout),
			std("/dev/stdout", nil, s.Stdout, !s.RawStdout),
			std("/dev/stderr", nil, s.Stderr, true),
		},
	}
}

// Get returns the open file with reference number ref.
func (t *Table) Get(ref uint32) (*File, error) {
	if ref >= uint32(len(t.files)) || t.files[ref] == nil {
		return nil, fmt.Errorf("refnum %d: %w", ref, unix.EBADF)
	}
	return t.files[ref], nil
}

// Open opens a host file and returns its reference number.
func (t *Table) Open(path string, flag int) (uint32, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return 0, err
	}
	entry := &File{Name: path, Allocated: true, f: f, r: f, w: f}
	for i := Stderr + 1; i < len(t.files); i++ {
		if t.files[i] == nil {
			t.files[i] = entry
			log.Debug(log.FileModule, "open", "path", path, "ref", i)
			return uint32(i), nil
		}
	}
	t.files = append(t.files, entry)
	ref := uint32(len(t.files) - 1)
	log.Debug(log.FileModule, "open", "path", path, "ref", ref)
	return ref, nil
}

// Close releases ref. The standard streams stay open.
func (t *Table) Close(ref uint32) error {
	f, err := t.Get(ref)
	if err != nil {
		return err
	}
	if !f.Allocated {
		return nil
	}
	t.files[ref] = nil
	log.Debug(log.FileModule, "close", "path", f.Name, "ref", ref)
	return f.f.Close()
}

// CloseAll closes every file the guest left open.
func (t *Table) CloseAll() {
	for ref, f := range t.files {
		if f != nil && f.Allocated {
			if err := t.Close(uint32(ref)); err != nil {
				log.Warn(log.FileModule, "close on exit", "path", f.Name, "err", err)
			}
		}
	}
}

// OpenCount returns the number of files the guest currently holds open.
func (t *Table) OpenCount() int {
	n := 0
	for _, f := range t.files {
		if f != nil && f.Allocated {
			n++
		}
	}
	return n
}

// HostPath converts a guest file name to a host path.
func HostPath(name []byte) string {
	return macpath.ToUnix(string(name))
}

// errno extracts the host error number the MPW runtime expects in D0.
func errno(err error) uint32 {
	var e unix.Errno
	if errors.As(err, &e) {
		return uint32(e)
	}
	return uint32(unix.EIO)
}
