// Package rsrc reads classic resource forks, loads resources lazily into
// guest handles and builds the A5 world of an MPW tool.
package rsrc

import (
	"bytes"
	"fmt"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

var (
	TypeCODE = common.MakeFourCC("CODE")
	TypeMPGM = common.MakeFourCC("MPGM")
)

const (
	headerSize  = 16
	mapPrologue = 30
	typeEntry   = 8
	refEntry    = 12

	noName = 0xFFFF
)

// Ref is one row of a type's reference list.
type Ref struct {
	Type       common.FourCC
	ID         uint16
	NameOffset uint16
	Name       []byte // raw MacRoman bytes, nil when unnamed
	Attrs      uint8
	DataOffset uint32

	// Handle is 0 until the resource is first loaded.
	Handle memory.GuestPtr
}

type typeList struct {
	kind common.FourCC
	refs []*Ref
}

// Map is the parsed resource map of one fork. Payload bytes stay in the
// raw fork until a resource is loaded.
type Map struct {
	raw []byte

	DataOffset uint32
	MapOffset  uint32
	DataLength uint32
	MapLength  uint32

	types []typeList
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), moserrors.ErrBadResourceFork)
}

// ParseMap reads the fork header, type list, reference lists and names.
func ParseMap(raw []byte) (*Map, error) {
	if len(raw) < headerSize {
		return nil, corrupt("fork of %d bytes has no header", len(raw))
	}
	m := &Map{
		raw:        raw,
		DataOffset: common.BE32(raw[0:]),
		MapOffset:  common.BE32(raw[4:]),
		DataLength: common.BE32(raw[8:]),
		MapLength:  common.BE32(raw[12:]),
	}
	size := uint64(len(raw))
	if uint64(m.DataOffset)+uint64(m.DataLength) > size {
		return nil, corrupt("data section 0x%X+0x%X beyond fork", m.DataOffset, m.DataLength)
	}
	if m.MapLength < mapPrologue || uint64(m.MapOffset)+uint64(m.MapLength) > size {
		return nil, corrupt("map section 0x%X+0x%X beyond fork", m.MapOffset, m.MapLength)
	}
	rmap := raw[m.MapOffset : m.MapOffset+m.MapLength]
	typeOff := uint32(common.BE16(rmap[24:]))
	nameOff := uint32(common.BE16(rmap[26:]))
	if typeOff+2 > m.MapLength {
		return nil, corrupt("type list offset 0x%X", typeOff)
	}

	count := uint32(common.BE16(rmap[typeOff:])) + 1
	// an empty map stores 0xFFFF as its count
	if count > 0xFFFF {
		count = 0
	}
	for i := uint32(0); i < count; i++ {
		e := typeOff + 2 + i*typeEntry
		if e+typeEntry > m.MapLength {
			return nil, corrupt("type entry %d beyond map", i)
		}
		tl := typeList{kind: common.FourCC(common.BE32(rmap[e:]))}
		n := uint32(common.BE16(rmap[e+4:])) + 1
		refOff := typeOff + uint32(common.BE16(rmap[e+6:]))
		for j := uint32(0); j < n; j++ {
			r := refOff + j*refEntry
			if r+refEntry > m.MapLength {
				return nil, corrupt("reference %d of '%s' beyond map", j, tl.kind)
			}
			ref := &Ref{
				Type:       tl.kind,
				ID:         common.BE16(rmap[r:]),
				NameOffset: common.BE16(rmap[r+2:]),
				Attrs:      rmap[r+4],
				DataOffset: common.BE24(rmap[r+5:]),
			}
			if ref.NameOffset != noName {
				p := nameOff + uint32(ref.NameOffset)
				if p >= m.MapLength || p+1+uint32(rmap[p]) > m.MapLength {
					return nil, corrupt("name of '%s' %d beyond map", tl.kind, ref.ID)
				}
				ref.Name = append([]byte(nil), rmap[p+1:p+1+uint32(rmap[p])]...)
			}
			tl.refs = append(tl.refs, ref)
		}
		m.types = append(m.types, tl)
	}
	return m, nil
}

// Data returns the payload of ref, a slice of the raw fork.
func (m *Map) Data(ref *Ref) ([]byte, error) {
	off := uint64(m.DataOffset) + uint64(ref.DataOffset)
	if off+4 > uint64(len(m.raw)) {
		return nil, corrupt("'%s' %d data offset 0x%X", ref.Type, ref.ID, ref.DataOffset)
	}
	n := uint64(common.BE32(m.raw[off:]))
	if off+4+n > uint64(len(m.raw)) {
		return nil, corrupt("'%s' %d length %d beyond fork", ref.Type, ref.ID, n)
	}
	return m.raw[off+4 : off+4+n], nil
}

func (m *Map) refs(kind common.FourCC) []*Ref {
	for _, tl := range m.types {
		if tl.kind == kind {
			return tl.refs
		}
	}
	return nil
}

// Lookup finds a resource by type and ID.
func (m *Map) Lookup(kind common.FourCC, id uint16) *Ref {
	for _, ref := range m.refs(kind) {
		if ref.ID == id {
			return ref
		}
	}
	return nil
}

// LookupNamed finds a resource by type and exact name.
func (m *Map) LookupNamed(kind common.FourCC, name []byte) *Ref {
	for _, ref := range m.refs(kind) {
		if ref.Name != nil && bytes.Equal(ref.Name, name) {
			return ref
		}
	}
	return nil
}

// Index returns the index-th resource of a type, counting from 1.
func (m *Map) Index(kind common.FourCC, index int) *Ref {
	refs := m.refs(kind)
	if index < 1 || index > len(refs) {
		return nil
	}
	return refs[index-1]
}

func (m *Map) Count(kind common.FourCC) int {
	return len(m.refs(kind))
}

// Types lists resource types in map order.
func (m *Map) Types() []common.FourCC {
	out := make([]common.FourCC, 0, len(m.types))
	for _, tl := range m.types {
		out = append(out, tl.kind)
	}
	return out
}

// FindHandle returns the row a loaded handle belongs to.
func (m *Map) FindHandle(h memory.GuestPtr) *Ref {
	if h == 0 {
		return nil
	}
	for _, tl := range m.types {
		for _, ref := range tl.refs {
			if ref.Handle == h {
				return ref
			}
		}
	}
	return nil
}
