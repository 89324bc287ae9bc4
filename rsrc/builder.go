package rsrc

import (
	"github.com/colorfulnotion/mosrun/common"
)

const (
	builderDataStart = 0x100
	builderTypeList  = 28
)

type builderEntry struct {
	id    uint16
	name  []byte
	attrs uint8
	data  []byte
}

// Builder assembles a resource fork in the classic layout. It is used to
// wrap raw code into a runnable tool and by tests.
type Builder struct {
	order   []common.FourCC
	entries map[common.FourCC][]builderEntry
}

func NewBuilder() *Builder {
	return &Builder{entries: make(map[common.FourCC][]builderEntry)}
}

// Add appends a resource. An empty name leaves it unnamed.
func (b *Builder) Add(kind common.FourCC, id uint16, name string, attrs uint8, data []byte) *Builder {
	if _, ok := b.entries[kind]; !ok {
		b.order = append(b.order, kind)
	}
	e := builderEntry{id: id, attrs: attrs, data: data}
	if name != "" {
		e.name = []byte(name)
	}
	b.entries[kind] = append(b.entries[kind], e)
	return b
}

// Bytes returns the fork.
func (b *Builder) Bytes() []byte {
	var data, names []byte
	dataOff := map[*builderEntry]uint32{}
	nameOff := map[*builderEntry]uint16{}
	for _, kind := range b.order {
		list := b.entries[kind]
		for i := range list {
			e := &list[i]
			dataOff[e] = uint32(len(data))
			data = append(data, be32(uint32(len(e.data)))...)
			data = append(data, e.data...)
			if e.name != nil {
				nameOff[e] = uint16(len(names))
				names = append(names, byte(len(e.name)))
				names = append(names, e.name...)
			}
		}
	}

	types := len(b.order)
	refStart := 2 + types*typeEntry
	rmap := make([]byte, builderTypeList)
	rmap = append(rmap, be16(uint16(types-1))...)
	refs := []byte{}
	for _, kind := range b.order {
		list := b.entries[kind]
		rmap = append(rmap, be32(uint32(kind))...)
		rmap = append(rmap, be16(uint16(len(list)-1))...)
		rmap = append(rmap, be16(uint16(refStart+len(refs)))...)
		for i := range list {
			e := &list[i]
			name := uint16(noName)
			if off, ok := nameOff[e]; ok {
				name = off
			}
			refs = append(refs, be16(e.id)...)
			refs = append(refs, be16(name)...)
			refs = append(refs, e.attrs, byte(dataOff[e]>>16), byte(dataOff[e]>>8), byte(dataOff[e]))
			refs = append(refs, 0, 0, 0, 0)
		}
	}
	rmap = append(rmap, refs...)
	nameList := len(rmap)
	rmap = append(rmap, names...)
	common.PutBE16(rmap[24:], builderTypeList)
	common.PutBE16(rmap[26:], uint16(nameList))

	mapStart := builderDataStart + len(data)
	out := make([]byte, builderDataStart, mapStart+len(rmap))
	common.PutBE32(out[0:], builderDataStart)
	common.PutBE32(out[4:], uint32(mapStart))
	common.PutBE32(out[8:], uint32(len(data)))
	common.PutBE32(out[12:], uint32(len(rmap)))
	out = append(out, data...)
	out = append(out, rmap...)
	copy(out[mapStart:], out[:16])
	return out
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	common.PutBE16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	common.PutBE32(b, v)
	return b
}
