package moserrors

import (
	"errors"
	"strings"
)

// Guest heap (M) errors
var (
	ErrOutOfMemory     = errors.New("M1|OutOfMemory: No free block is large enough for the request.")
	ErrDoubleFree      = errors.New("M2|DoubleFree: The block is already free.")
	ErrCorruptBlock    = errors.New("M3|CorruptBlock: A block header carries an invalid magic tag.")
	ErrNotAllocated    = errors.New("M4|NotAllocated: The address is not the payload of an allocated block.")
	ErrOutOfRange      = errors.New("M5|OutOfRange: The access is not covered by an allocated block.")
	ErrIncoherentHeap  = errors.New("M6|IncoherentHeap: The block list violates its invariants.")
	ErrBadArenaSize    = errors.New("M7|BadArenaSize: The arena size must be a non-zero multiple of the page size.")
	ErrNilHandle       = errors.New("M8|NilHandle: The handle is zero.")
	ErrSentinelTouched = errors.New("M9|SentinelTouched: The sentinel block cannot be freed or resized.")
)

// Resource (R) errors
var (
	ErrBadResourceFork  = errors.New("R1|BadResourceFork: The resource container is truncated or malformed.")
	ErrResourceNotFound = errors.New("R2|ResourceNotFound: No resource matches the requested type and ID.")
	ErrNoCode0          = errors.New("R3|NoCode0: The tool has no CODE 0 resource.")
	ErrNoApplication    = errors.New("R4|NoApplication: No resource fork could be loaded for the tool.")
	ErrBadA5Header      = errors.New("R5|BadA5Header: The CODE 0 header does not fit its resource.")
)

// Trap (T) errors
var (
	ErrUnknownNative = errors.New("T1|UnknownNative: Glue refers to an unregistered native routine.")
	ErrGuestExit     = errors.New("T2|GuestExit: The guest tool terminated.")
	ErrBadTrapSlot   = errors.New("T3|BadTrapSlot: Trap slot out of range.")
)

// Breakpoint (B) errors
var (
	ErrBadBreakpointSpec = errors.New("B1|BadBreakpointSpec: Breakpoints are written segment:offset[:label].")
)

// CPU (C) errors
var (
	ErrCPUStopped   = errors.New("C1|CPUStopped: The CPU core was stopped by the host.")
	ErrNoCPUCore    = errors.New("C2|NoCPUCore: This binary was built without a CPU core.")
	ErrCPUException = errors.New("C3|CPUException: The guest raised a processor exception the runtime does not handle.")
)

// Debug console (D) errors
var (
	ErrConsoleQuit = errors.New("D1|ConsoleQuit: The run was ended from the debug console.")
)

func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	if len(parts) < 2 {
		return errStr
	}
	nameDesc := parts[1]
	nameParts := strings.SplitN(nameDesc, ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}
