package memory

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// NewHandle allocates a payload of size bytes and a master pointer block
// referring to it. A zero size yields an empty handle.
func (a *Arena) NewHandle(size uint32) (GuestPtr, error) {
	var p GuestPtr
	if size > 0 {
		var err error
		if p, err = a.Alloc(size); err != nil {
			return 0, err
		}
	}
	h, err := a.alloc(4, KindHandleTable)
	if err != nil {
		if p != 0 {
			err = errors.Join(err, a.Free(p))
		}
		return 0, err
	}
	a.WriteUnsafe32(h, p)
	log.Trace(log.MemoryModule, "new handle", "handle", fmt.Sprintf("0x%08X", h), "ptr", fmt.Sprintf("0x%08X", p), "size", size)
	return h, nil
}

func (a *Arena) handleBlock(h GuestPtr) (Block, error) {
	if h == 0 {
		return Block{}, moserrors.ErrNilHandle
	}
	b, err := a.blockOf(h)
	if err != nil {
		return b, err
	}
	if b.Kind != KindHandleTable {
		return b, fmt.Errorf("0x%08X is a %s block: %w", h, b.Kind, moserrors.ErrNotAllocated)
	}
	return b, nil
}

// Deref returns the payload a handle refers to, 0 for an empty handle.
func (a *Arena) Deref(h GuestPtr) (GuestPtr, error) {
	if _, err := a.handleBlock(h); err != nil {
		return 0, err
	}
	return a.ReadUnsafe32(h), nil
}

// DisposeHandle frees the payload and the master pointer block.
func (a *Arena) DisposeHandle(h GuestPtr) error {
	if h == 0 {
		return nil
	}
	if _, err := a.handleBlock(h); err != nil {
		log.Error(log.MemoryModule, "dispose of unknown handle", "handle", fmt.Sprintf("0x%08X", h), "err", err)
		return fmt.Errorf("dispose handle: %w", err)
	}
	if p := a.ReadUnsafe32(h); p != 0 {
		if err := a.Free(p); err != nil {
			return err
		}
	}
	return a.Free(h)
}

// SetHandleSize moves the payload into a new block of size bytes, keeping
// the common prefix. It never grows a block in place.
func (a *Arena) SetHandleSize(h GuestPtr, size uint32) error {
	if _, err := a.handleBlock(h); err != nil {
		return fmt.Errorf("set handle size: %w", err)
	}
	old := a.ReadUnsafe32(h)
	var oldSize uint32
	if old != 0 {
		var err error
		if oldSize, err = a.Size(old); err != nil {
			return fmt.Errorf("set handle size: %w", err)
		}
	}
	p, err := a.Alloc(size)
	if err != nil {
		return err
	}
	a.Memcpy(p, old, min(oldSize, size))
	a.WriteUnsafe32(h, p)
	if old != 0 {
		return a.Free(old)
	}
	return nil
}

// RecoverHandle finds the master pointer referring to ptr, 0 if none does.
func (a *Arena) RecoverHandle(ptr GuestPtr) GuestPtr {
	if ptr == 0 {
		return 0
	}
	for b := range a.Blocks() {
		if b.Kind == KindHandleTable && a.ReadUnsafe32(b.Payload()) == ptr {
			return b.Payload()
		}
	}
	return 0
}

// HandleState returns the HGetState flags of a handle.
func (a *Arena) HandleState(h GuestPtr) (uint8, error) {
	b, err := a.handleBlock(h)
	if err != nil {
		return 0, err
	}
	return b.State, nil
}

// SetHandleState replaces the HGetState flags of a handle.
func (a *Arena) SetHandleState(h GuestPtr, state uint8) error {
	b, err := a.handleBlock(h)
	if err != nil {
		return err
	}
	a.setState(b.Addr, state)
	return nil
}
