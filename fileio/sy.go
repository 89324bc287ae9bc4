package fileio

import (
	"os"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/macpath"
	"github.com/colorfulnotion/mosrun/memory"
	"golang.org/x/sys/unix"
)

// MPW open flags, as found in the first word of a file record.
const (
	ORdOnly   = 0x0000
	OWrOnly   = 0x0001
	ORdWr     = 0x0002
	OAppend   = 0x0008
	ORsrc     = 0x0010
	OAlias    = 0x0020
	OCreat    = 0x0100
	OTrunc    = 0x0200
	OExcl     = 0x0400
	OBinary   = 0x0800
	ONResolve = 0x4000
)

// Device control codes understood by SyIoctl.
const (
	FIOLSeek       = 0x6600
	FIODupFD       = 0x6601
	FIOInteractive = 0x6602
	FIOBufSize     = 0x6603
	FIOFName       = 0x6604
	FIORefNum      = 0x6605
	FIOSetEOF      = 0x6606

	// FAccessOpen is the only faccess command the runtime issues.
	FAccessOpen = 0x6400

	BufSize = 1024
)

// File record layout.
const (
	recFlags  = 0
	recIndex  = 8
	recCount  = 12
	recBuffer = 16
)

// hostFlags translates MPW open flags to os.OpenFile flags.
func hostFlags(flags uint16) int {
	var f int
	switch flags & 3 {
	case OWrOnly:
		f = os.O_WRONLY
	case ORdWr, 3:
		f = os.O_RDWR
	default:
		f = os.O_RDONLY
	}
	if flags&OAppend != 0 {
		f |= os.O_APPEND
	}
	if flags&OCreat != 0 {
		f |= os.O_CREATE
	}
	if flags&OTrunc != 0 {
		f |= os.O_TRUNC
	}
	if flags&OExcl != 0 {
		f |= os.O_EXCL
	}
	if flags&ONResolve != 0 {
		f |= unix.O_NOFOLLOW
	}
	return f
}

// SyFAccess opens the file name for the record at rec. The result is the
// host error number, 0 on success.
func (t *Table) SyFAccess(name memory.GuestPtr, cmd uint32, rec memory.GuestPtr) uint32 {
	guestName := t.mem.CString(name)
	flags := t.mem.Read16(rec + recFlags)
	log.Trace(log.FileModule, "faccess", "name", string(macpath.DecodeText(guestName)), "cmd", cmd, "flags", flags)
	if cmd != FAccessOpen {
		log.Error(log.FileModule, "unknown faccess command", "cmd", cmd)
		return uint32(unix.EINVAL)
	}
	path := HostPath(guestName)
	switch {
	case flags&ORsrc != 0:
		log.Warn(log.FileModule, "resource fork access not supported", "path", path)
		return uint32(unix.ENOENT)
	case flags&OAlias != 0:
		log.Warn(log.FileModule, "alias access not supported", "path", path)
		return uint32(unix.ENOENT)
	}
	ref, err := t.Open(path, hostFlags(flags))
	if err != nil {
		log.Debug(log.FileModule, "open failed", "path", path, "err", err)
		return errno(err)
	}
	t.mem.Write32(rec+recIndex, ref)
	return 0
}

// SyClose closes the file of the record at rec.
func (t *Table) SyClose(rec memory.GuestPtr) uint32 {
	ref := t.mem.Read32(rec + recIndex)
	f, err := t.Get(ref)
	if err != nil {
		return errno(err)
	}
	if err := t.Close(ref); err != nil {
		return errno(err)
	}
	if f.Allocated {
		t.mem.Write32(rec+recIndex, 0)
	}
	return 0
}

// SyRead fills the record's buffer. The count field is left holding the
// number of bytes that were not read.
func (t *Table) SyRead(rec memory.GuestPtr) uint32 {
	f, err := t.Get(t.mem.Read32(rec + recIndex))
	if err != nil {
		return errno(err)
	}
	buf := t.mem.Read32(rec + recBuffer)
	size := t.mem.Read32(rec + recCount)
	data := make([]byte, size)
	n, err := f.Read(data)
	if n == 0 && err != nil && !isEOF(err) {
		log.Debug(log.FileModule, "read failed", "path", f.Name, "err", err)
		return errno(err)
	}
	data = data[:n]
	if f.text {
		var whole []byte
		whole, f.pending = macpath.SplitIncomplete(append(f.pending, data...))
		data = macpath.EncodeText(whole)
	}
	t.mem.WriteBytes(buf, data)
	t.mem.Write32(rec+recCount, size-uint32(len(data)))
	return 0
}

// SyWrite writes the record's buffer. Text streams are converted to host
// conventions first.
func (t *Table) SyWrite(rec memory.GuestPtr) uint32 {
	f, err := t.Get(t.mem.Read32(rec + recIndex))
	if err != nil {
		return errno(err)
	}
	size := t.mem.Read32(rec + recCount)
	data := t.mem.Bytes(t.mem.Read32(rec+recBuffer), size)
	if f.text {
		data = macpath.DecodeText(data)
	}
	if _, err := f.Write(data); err != nil {
		log.Debug(log.FileModule, "write failed", "path", f.Name, "err", err)
		return errno(err)
	}
	t.mem.Write32(rec+recCount, 0)
	return 0
}

// SyIoctl performs device control cmd on the record at rec. param points
// to the command's argument.
func (t *Table) SyIoctl(rec memory.GuestPtr, cmd uint32, param memory.GuestPtr) uint32 {
	ref := t.mem.Read32(rec + recIndex)
	log.Trace(log.FileModule, "ioctl", "rec", rec, "cmd", cmd, "param", param)
	f, err := t.Get(ref)
	if err != nil {
		return errno(err)
	}
	switch cmd {
	case FIOLSeek:
		whence := int(t.mem.Read32(param))
		offset := int64(int32(t.mem.Read32(param + 4)))
		pos, err := f.Seek(offset, whence)
		if err != nil {
			t.mem.Write32(param+4, 0xFFFFFFFF)
			return errno(err)
		}
		t.mem.Write32(param+4, uint32(pos))
		return 0
	case FIODupFD:
		return ref
	case FIOInteractive:
		if f.Interactive() {
			return 1
		}
		return 0
	case FIOBufSize:
		if param != 0 {
			t.mem.Write16(param+2, BufSize)
		}
		return BufSize
	}
	log.Error(log.FileModule, "unsupported ioctl", "cmd", cmd, "path", f.Name)
	return 0xFFFFFFFF
}
