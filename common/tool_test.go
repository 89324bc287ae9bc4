package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFourCC(t *testing.T) {
	code := MakeFourCC("CODE")
	assert.Equal(t, FourCC(0x434F4445), code)
	assert.Equal(t, "CODE", code.String())
	assert.Equal(t, "ab  ", MakeFourCC("ab").String())
	assert.Equal(t, "....", FourCC(0).String())
}

func TestBigEndianHelpers(t *testing.T) {
	buf := make([]byte, 4)
	PutBE32(buf, 0xAFFD4E75)
	assert.Equal(t, []byte{0xAF, 0xFD, 0x4E, 0x75}, buf)
	assert.Equal(t, uint16(0x4E75), BE16(buf[2:]))
	assert.Equal(t, uint32(0xFD4E75), BE24(buf[1:]))
	assert.Equal(t, uint32(8), Align4(5))
	assert.Equal(t, uint32(8), Align4(8))
}

func TestHexDump(t *testing.T) {
	out := HexDump(0x1000, []byte("Hello, mosrun!\x00\x01X"))
	lines := splitLines(out)
	require.Len(t, lines, 2)
	assert.Equal(t, "00001000: 48 65 6C 6C 6F 2C 20 6D 6F 73 72 75 6E 21 00 01  Hello, mosrun!..", lines[0])
	assert.Contains(t, lines[1], "00001010: 58 ")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}

func TestColorize(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.Equal(t, ColorRed+"x"+ColorReset, Colorize(ColorRed, "x"))
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, "x", Colorize(ColorRed, "x"))
}
