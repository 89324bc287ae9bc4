package common

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FourCC is a four character code such as 'CODE' or 'MPGM'.
type FourCC uint32

// MakeFourCC packs the first four bytes of s, padding with spaces.
func MakeFourCC(s string) FourCC {
	var b [4]byte
	for i := range b {
		b[i] = ' '
		if i < len(s) {
			b[i] = s[i]
		}
	}
	return FourCC(binary.BigEndian.Uint32(b[:]))
}

func (f FourCC) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(f))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			b[i] = '.'
		}
	}
	return string(b[:])
}

func BE16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func BE32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func PutBE16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func PutBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// BE24 reads a 24-bit big-endian value, as found in resource reference lists.
func BE24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Align4 rounds n up to a multiple of four.
func Align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// HexDump renders data in 16-byte rows labelled with guest addresses
// starting at base.
func HexDump(base uint32, data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		fmt.Fprintf(&sb, "%08X: ", base+uint32(off))
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte(' ')
		for _, c := range row {
			if c < 0x20 || c > 0x7E {
				c = '.'
			}
			sb.WriteByte(c)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
