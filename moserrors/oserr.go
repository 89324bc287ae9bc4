package moserrors

import "fmt"

// OSErr is the signed 16-bit result code classic Mac OS routines return in
// D0 and in parameter blocks.
type OSErr int16

const (
	NoErr        OSErr = 0
	BdNamErr     OSErr = -37  // bad file or volume name
	EOFErr       OSErr = -39  // position beyond end of file
	FnfErr       OSErr = -43  // file not found
	DupFNErr     OSErr = -48  // duplicate file name
	ParamErr     OSErr = -50  // bad parameter
	MemFullErr   OSErr = -108 // not enough room in heap
	NilHandleErr OSErr = -109 // handle is nil
	MemWZErr     OSErr = -111 // operation on a free block
	ResNotFound  OSErr = -192 // resource not found
)

var osErrNames = map[OSErr]string{
	NoErr:        "noErr",
	BdNamErr:     "bdNamErr",
	EOFErr:       "eofErr",
	FnfErr:       "fnfErr",
	DupFNErr:     "dupFNErr",
	ParamErr:     "paramErr",
	MemFullErr:   "memFullErr",
	NilHandleErr: "nilHandleErr",
	MemWZErr:     "memWZErr",
	ResNotFound:  "resNotFound",
}

func (e OSErr) String() string {
	if name, ok := osErrNames[e]; ok {
		return name
	}
	return fmt.Sprintf("OSErr(%d)", int16(e))
}

// Reg returns the value as it is stored in a 32-bit data register.
func (e OSErr) Reg() uint32 {
	return uint32(int32(e))
}

// Word returns the value as it is stored in a 16-bit parameter block field.
func (e OSErr) Word() uint16 {
	return uint16(e)
}
