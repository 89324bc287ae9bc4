package rsrc

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/lowmem"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// JumpTableSegment is the segment number under which the jump table range
// is reported in traces.
const JumpTableSegment = 19

// farHeader is the extra header size of a CODE resource that starts with
// 0xFFFF (far model segments).
const farHeader = 0x24

// Segment is the live address range of one loaded CODE resource.
type Segment struct {
	ID    uint16
	Start memory.GuestPtr
	End   memory.GuestPtr
}

// SegmentObserver is called after a CODE resource was copied into the guest.
type SegmentObserver func(seg Segment)

// Loader copies resources from a Map into guest handles on first use.
type Loader struct {
	mem     *memory.Arena
	m       *Map
	globals *lowmem.Globals

	segments  map[uint16]Segment
	jumpTable Segment
	observers []SegmentObserver
	loads     int
}

func NewLoader(mem *memory.Arena, m *Map, g *lowmem.Globals) *Loader {
	return &Loader{mem: mem, m: m, globals: g, segments: make(map[uint16]Segment)}
}

func (l *Loader) Map() *Map { return l.m }

// Loads counts payload copies, a cache miss each.
func (l *Loader) Loads() int { return l.loads }

// OnSegmentLoaded registers an observer for CODE loads.
func (l *Loader) OnSegmentLoaded(fn SegmentObserver) {
	l.observers = append(l.observers, fn)
}

func (l *Loader) setResErr(err moserrors.OSErr) {
	if l.globals != nil {
		l.globals.ResErr = int16(err)
	}
}

func (l *Loader) notFound(kind common.FourCC, what string) (memory.GuestPtr, error) {
	l.setResErr(moserrors.ResNotFound)
	log.Debug(log.ResourceModule, "resource not found", "type", kind.String(), "id", what)
	return 0, fmt.Errorf("'%s' %s: %w", kind, what, moserrors.ErrResourceNotFound)
}

// GetResource returns the handle of a resource, loading it on first use.
func (l *Loader) GetResource(kind common.FourCC, id uint16) (memory.GuestPtr, error) {
	ref := l.m.Lookup(kind, id)
	if ref == nil {
		return l.notFound(kind, fmt.Sprintf("%d", int16(id)))
	}
	return l.load(ref)
}

// GetNamedResource looks a resource up by its name.
func (l *Loader) GetNamedResource(kind common.FourCC, name []byte) (memory.GuestPtr, error) {
	ref := l.m.LookupNamed(kind, name)
	if ref == nil {
		return l.notFound(kind, fmt.Sprintf("%q", name))
	}
	return l.load(ref)
}

// GetIndResource loads the index-th resource of a type, counting from 1.
func (l *Loader) GetIndResource(kind common.FourCC, index int) (memory.GuestPtr, error) {
	ref := l.m.Index(kind, index)
	if ref == nil {
		return l.notFound(kind, fmt.Sprintf("#%d", index))
	}
	return l.load(ref)
}

func (l *Loader) Count(kind common.FourCC) int {
	l.setResErr(moserrors.NoErr)
	return l.m.Count(kind)
}

func (l *Loader) load(ref *Ref) (memory.GuestPtr, error) {
	if ref.Handle != 0 {
		l.setResErr(moserrors.NoErr)
		log.Trace(log.ResourceModule, "resource already loaded", "type", ref.Type.String(), "id", ref.ID)
		return ref.Handle, nil
	}
	if l.globals != nil && l.globals.ResLoad == 0 {
		log.Warn(log.ResourceModule, "automatic resource loading is disabled, loading anyway", "type", ref.Type.String(), "id", ref.ID)
	}
	data, err := l.m.Data(ref)
	if err != nil {
		return 0, err
	}
	h, err := l.mem.NewHandle(uint32(len(data)))
	if err != nil {
		return 0, fmt.Errorf("load '%s' %d: %w", ref.Type, ref.ID, err)
	}
	p, _ := l.mem.Deref(h)
	l.mem.WriteBytes(p, data)
	l.mem.SetHandleState(h, memory.StateResource)
	ref.Handle = h
	l.loads++
	l.setResErr(moserrors.NoErr)
	log.Trace(log.ResourceModule, "resource loaded", "type", ref.Type.String(), "id", ref.ID, "handle", fmt.Sprintf("0x%08X", h), "size", len(data))

	if ref.Type == TypeCODE {
		l.segmentLoaded(ref.ID, p, uint32(len(data)))
	}
	return h, nil
}

func (l *Loader) segmentLoaded(id uint16, p memory.GuestPtr, size uint32) {
	seg := Segment{ID: id, Start: p + 4, End: p + size}
	if size >= 2 && l.mem.Read16(p) == 0xFFFF {
		seg.Start = p + 4 + farHeader
	}
	l.segments[id] = seg
	l.mem.Invalidate(p, size)
	log.Debug(log.ResourceModule, "segment loaded", "id", id, "start", fmt.Sprintf("0x%08X", seg.Start), "end", fmt.Sprintf("0x%08X", seg.End))
	for _, fn := range l.observers {
		fn(seg)
	}
}

// Size returns the payload size of a loaded resource handle.
func (l *Loader) Size(h memory.GuestPtr) (uint32, error) {
	p, err := l.mem.Deref(h)
	if err != nil || p == 0 {
		l.setResErr(moserrors.ResNotFound)
		return 0, err
	}
	l.setResErr(moserrors.NoErr)
	return l.mem.Size(p)
}

// Detach forgets the handle so the resource manager no longer owns it.
// The next lookup copies the payload again.
func (l *Loader) Detach(h memory.GuestPtr) {
	if ref := l.m.FindHandle(h); ref != nil {
		ref.Handle = 0
		if state, err := l.mem.HandleState(h); err == nil {
			l.mem.SetHandleState(h, state&^memory.StateResource)
		}
		l.setResErr(moserrors.NoErr)
		return
	}
	l.setResErr(moserrors.ResNotFound)
}

// Segment returns the range of a loaded CODE resource.
func (l *Loader) Segment(id uint16) (Segment, bool) {
	seg, ok := l.segments[id]
	return seg, ok
}

// SegmentOf maps a guest address to a segment and offset. The jump table
// answers as JumpTableSegment when no CODE segment claims the address.
func (l *Loader) SegmentOf(addr memory.GuestPtr) (uint16, uint32, bool) {
	for id, seg := range l.segments {
		if addr >= seg.Start && addr < seg.End {
			return id, addr - seg.Start, true
		}
	}
	if jt := l.jumpTable; jt.End > jt.Start && addr >= jt.Start && addr < jt.End {
		return JumpTableSegment, addr - jt.Start, true
	}
	return 0, 0, false
}

// FormatAddr renders addr as "seg.offset" when it lies in loaded code.
func (l *Loader) FormatAddr(addr memory.GuestPtr) string {
	if id, off, ok := l.SegmentOf(addr); ok {
		return fmt.Sprintf("%02d.%05X", id, off)
	}
	return fmt.Sprintf("%08X", addr)
}
