package fileio

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"golang.org/x/sys/unix"
)

// Parameter block fields.
const (
	ioResult    = 16
	ioNamePtr   = 18
	ioRefNum    = 24
	ioPermssn   = 27
	ioMisc      = 28
	ioBuffer    = 32
	ioReqCount  = 36
	ioActCount  = 40
	ioPosMode   = 44
	ioPosOffset = 46

	ioFlAttrib   = 30
	ioFlVersNum  = 31
	ioFlFndrInfo = 32
	ioFlStBlk    = 52
	ioFlLgLen    = 54
	ioFlPyLen    = 58
	ioFlRStBlk   = 62
	ioFlRLgLen   = 64
	ioFlRPyLen   = 68
	ioFlCrDat    = 72
	ioFlMdDat    = 76
)

// Access permissions in ioPermssn.
const (
	fsCurPerm  = 0
	fsRdPerm   = 1
	fsWrPerm   = 2
	fsRdWrPerm = 3
)

// Positioning modes in ioPosMode.
const (
	fsAtMark    = 0
	fsFromStart = 1
	fsFromLEOF  = 2
	fsFromMark  = 3
)

// FSDispatch selectors.
const (
	SelOpenDF   = 0x1A
	SelDTDelete = 0x2F
)

// MacEpochOffset is the number of seconds between 1904-01-01 and the Unix
// epoch.
const MacEpochOffset = 2082844800

// MacTime converts a host time to seconds since 1904.
func MacTime(t time.Time) uint32 {
	return uint32(t.Unix() + MacEpochOffset)
}

var finderInfoAttrs = []string{"com.apple.FinderInfo", "user.com.apple.FinderInfo"}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// osErr maps a host error to the classic result code. fallback is used for
// errors without a closer equivalent.
func osErr(err error, fallback moserrors.OSErr) moserrors.OSErr {
	switch {
	case err == nil:
		return moserrors.NoErr
	case isEOF(err):
		return moserrors.EOFErr
	case errors.Is(err, fs.ErrNotExist):
		return moserrors.FnfErr
	case errors.Is(err, fs.ErrExist):
		return moserrors.DupFNErr
	case errors.Is(err, unix.ENAMETOOLONG), errors.Is(err, unix.ENOTDIR):
		return moserrors.BdNamErr
	case errors.Is(err, unix.EBADF), errors.Is(err, unix.EINVAL):
		return moserrors.ParamErr
	}
	return fallback
}

func (t *Table) result(pb memory.GuestPtr, e moserrors.OSErr) moserrors.OSErr {
	t.mem.Write16(pb+ioResult, e.Word())
	return e
}

// name reads the parameter block's file name and converts it to a host
// path.
func (t *Table) name(pb memory.GuestPtr) (string, bool) {
	p := t.mem.Read32(pb + ioNamePtr)
	if p == 0 {
		return "", false
	}
	name := t.mem.PString(p)
	if len(name) == 0 {
		return "", false
	}
	return HostPath(name), true
}

// PBHOpen opens the named data fork and stores its reference number.
func (t *Table) PBHOpen(pb memory.GuestPtr) moserrors.OSErr {
	path, ok := t.name(pb)
	if !ok {
		return t.result(pb, moserrors.BdNamErr)
	}
	var flag int
	switch perm := t.mem.Read8(pb + ioPermssn); perm {
	case fsRdPerm:
		flag = os.O_RDONLY
	case fsWrPerm:
		flag = os.O_WRONLY
	case fsCurPerm, fsRdWrPerm:
		flag = os.O_RDWR
	default:
		log.Warn(log.FileModule, "open with unknown permission", "path", path, "perm", perm)
		flag = os.O_RDONLY
	}
	ref, err := t.Open(path, flag)
	if err != nil && flag == os.O_RDWR && t.mem.Read8(pb+ioPermssn) == fsCurPerm {
		// fsCurPerm takes whatever access is allowed
		ref, err = t.Open(path, os.O_RDONLY)
	}
	if err != nil {
		log.Debug(log.FileModule, "PBHOpen failed", "path", path, "err", err)
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	t.mem.Write16(pb+ioRefNum, uint16(ref))
	return t.result(pb, moserrors.NoErr)
}

// PBClose closes the file ioRefNum.
func (t *Table) PBClose(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	if err := t.Close(ref); err != nil {
		log.Debug(log.FileModule, "PBClose failed", "ref", ref, "err", err)
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	return t.result(pb, moserrors.NoErr)
}

// position applies ioPosMode and ioPosOffset before a transfer.
func (t *Table) position(pb memory.GuestPtr, f *File) error {
	offset := int64(int32(t.mem.Read32(pb + ioPosOffset)))
	var err error
	switch mode := t.mem.Read16(pb+ioPosMode) & 3; mode {
	case fsFromStart:
		_, err = f.Seek(offset, io.SeekStart)
	case fsFromLEOF:
		_, err = f.Seek(offset, io.SeekEnd)
	case fsFromMark:
		_, err = f.Seek(offset, io.SeekCurrent)
	}
	return err
}

// mark writes the current position back to ioPosOffset.
func (t *Table) mark(pb memory.GuestPtr, f *File) {
	if pos, err := f.Seek(0, io.SeekCurrent); err == nil {
		t.mem.Write32(pb+ioPosOffset, uint32(pos))
	}
}

// PBRead reads ioReqCount bytes into ioBuffer. A short read reports eofErr
// with ioActCount holding what was transferred.
func (t *Table) PBRead(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	f, err := t.Get(ref)
	if err != nil {
		return t.result(pb, moserrors.ParamErr)
	}
	if err := t.position(pb, f); err != nil {
		return t.result(pb, osErr(err, moserrors.EOFErr))
	}
	req := t.mem.Read32(pb + ioReqCount)
	data := make([]byte, req)
	n, err := io.ReadFull(f, data)
	t.mem.WriteBytes(t.mem.Read32(pb+ioBuffer), data[:n])
	t.mem.Write32(pb+ioActCount, uint32(n))
	t.mark(pb, f)
	log.Debug(log.FileModule, "PBRead", "ref", ref, "req", req, "act", n)
	if errors.Is(err, io.ErrUnexpectedEOF) || isEOF(err) {
		return t.result(pb, moserrors.EOFErr)
	}
	if err != nil {
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	return t.result(pb, moserrors.NoErr)
}

// PBWrite writes ioReqCount bytes from ioBuffer.
func (t *Table) PBWrite(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	f, err := t.Get(ref)
	if err != nil {
		return t.result(pb, moserrors.ParamErr)
	}
	if err := t.position(pb, f); err != nil {
		return t.result(pb, osErr(err, moserrors.EOFErr))
	}
	req := t.mem.Read32(pb + ioReqCount)
	n, err := f.Write(t.mem.Bytes(t.mem.Read32(pb+ioBuffer), req))
	t.mem.Write32(pb+ioActCount, uint32(n))
	t.mark(pb, f)
	log.Debug(log.FileModule, "PBWrite", "ref", ref, "req", req, "act", n)
	if err != nil {
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	return t.result(pb, moserrors.NoErr)
}

// PBCreate creates an empty file without opening it.
func (t *Table) PBCreate(pb memory.GuestPtr) moserrors.OSErr {
	path, ok := t.name(pb)
	if !ok {
		return t.result(pb, moserrors.BdNamErr)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		log.Debug(log.FileModule, "PBCreate failed", "path", path, "err", err)
		return t.result(pb, osErr(err, moserrors.DupFNErr))
	}
	f.Close()
	return t.result(pb, moserrors.NoErr)
}

// PBDelete removes the named file.
func (t *Table) PBDelete(pb memory.GuestPtr) moserrors.OSErr {
	path, ok := t.name(pb)
	if !ok {
		return t.result(pb, moserrors.BdNamErr)
	}
	if err := os.Remove(path); err != nil {
		log.Warn(log.FileModule, "PBDelete failed", "path", path, "err", err)
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	return t.result(pb, moserrors.NoErr)
}

// PBGetFInfo fills in the file information fields of the named file.
func (t *Table) PBGetFInfo(pb memory.GuestPtr) moserrors.OSErr {
	path, ok := t.name(pb)
	if !ok {
		return t.result(pb, moserrors.BdNamErr)
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		log.Debug(log.FileModule, "PBGetFInfo failed", "path", path, "err", err)
		return t.result(pb, moserrors.FnfErr)
	}
	size := uint32(st.Size)
	t.mem.Write16(pb+ioRefNum, 0xFFFF)
	t.mem.Write8(pb+ioFlAttrib, 0)
	t.mem.Write8(pb+ioFlVersNum, 0)
	t.mem.WriteBytes(pb+ioFlFndrInfo, finderInfo(path))
	t.mem.Write16(pb+ioFlStBlk, 0)
	if size > 0 {
		t.mem.Write16(pb+ioFlStBlk, 1)
	}
	t.mem.Write32(pb+ioFlLgLen, size)
	t.mem.Write32(pb+ioFlPyLen, size)
	t.mem.Write16(pb+ioFlRStBlk, 0)
	t.mem.Write32(pb+ioFlRLgLen, 0)
	t.mem.Write32(pb+ioFlRPyLen, 0)
	t.mem.Write32(pb+ioFlCrDat, MacTime(time.Unix(int64(st.Ctim.Sec), 0)))
	t.mem.Write32(pb+ioFlMdDat, MacTime(time.Unix(int64(st.Mtim.Sec), 0)))
	return t.result(pb, moserrors.NoErr)
}

// finderInfo returns the 16-byte FInfo record (type, creator, flags,
// location, folder) from the host's Finder info attribute, or zeroes.
func finderInfo(path string) []byte {
	buf := make([]byte, 32)
	for _, attr := range finderInfoAttrs {
		if n, err := unix.Getxattr(path, attr, buf); err == nil && n >= 16 {
			return buf[:16]
		}
	}
	return make([]byte, 16)
}

// PBSetFInfo accepts Finder information without storing it.
func (t *Table) PBSetFInfo(pb memory.GuestPtr) moserrors.OSErr {
	if path, ok := t.name(pb); ok {
		log.Debug(log.FileModule, "PBSetFInfo ignored", "path", path)
	}
	return t.result(pb, moserrors.NoErr)
}

// PBSetEOF truncates or extends the file ioRefNum to ioMisc bytes.
func (t *Table) PBSetEOF(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	f, err := t.Get(ref)
	if err != nil || f.f == nil {
		return t.result(pb, moserrors.ParamErr)
	}
	size := t.mem.Read32(pb + ioMisc)
	if err := f.f.Truncate(int64(size)); err != nil {
		log.Debug(log.FileModule, "PBSetEOF failed", "ref", ref, "size", size, "err", err)
		return t.result(pb, osErr(err, moserrors.FnfErr))
	}
	return t.result(pb, moserrors.NoErr)
}

// PBGetFPos reports the current position in ioPosOffset.
func (t *Table) PBGetFPos(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	f, err := t.Get(ref)
	if err != nil {
		return t.result(pb, moserrors.ParamErr)
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return t.result(pb, osErr(err, moserrors.ParamErr))
	}
	t.mem.Write32(pb+ioReqCount, 0)
	t.mem.Write32(pb+ioActCount, 0)
	t.mem.Write16(pb+ioPosMode, 0)
	t.mem.Write32(pb+ioPosOffset, uint32(pos))
	return t.result(pb, moserrors.NoErr)
}

// PBSetFPos moves the mark of ioRefNum.
func (t *Table) PBSetFPos(pb memory.GuestPtr) moserrors.OSErr {
	ref := uint32(t.mem.Read16(pb + ioRefNum))
	f, err := t.Get(ref)
	if err != nil {
		return t.result(pb, moserrors.ParamErr)
	}
	if err := t.position(pb, f); err != nil {
		log.Debug(log.FileModule, "PBSetFPos failed", "ref", ref, "err", err)
		return t.result(pb, moserrors.EOFErr)
	}
	t.mark(pb, f)
	return t.result(pb, moserrors.NoErr)
}

// FSDispatch routes the HFS dispatch selectors the runtime uses.
func (t *Table) FSDispatch(pb memory.GuestPtr, selector uint16) moserrors.OSErr {
	switch selector {
	case SelOpenDF:
		return t.PBHOpen(pb)
	case SelDTDelete:
		return t.PBDelete(pb)
	}
	log.Error(log.FileModule, "FSDispatch selector not implemented", "selector", selector)
	return t.result(pb, moserrors.ParamErr)
}
