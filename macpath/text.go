package macpath

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// unmappable stands in for characters MacRoman cannot represent.
const unmappable = '$'

// DecodeText converts MacRoman text with CR line ends to UTF-8 with LF.
func DecodeText(mac []byte) []byte {
	out := make([]byte, 0, len(mac))
	for _, c := range mac {
		switch {
		case c == '\r':
			out = append(out, '\n')
		case c < 0x80:
			out = append(out, c)
		default:
			out = utf8.AppendRune(out, charmap.Macintosh.DecodeByte(c))
		}
	}
	return out
}

// EncodeText converts UTF-8 text with LF line ends to MacRoman with CR.
// Invalid sequences and characters without a MacRoman code become '$'.
func EncodeText(text []byte) []byte {
	out := make([]byte, 0, len(text))
	for len(text) > 0 {
		c := text[0]
		if c < 0x80 {
			if c == '\n' {
				c = '\r'
			}
			out = append(out, c)
			text = text[1:]
			continue
		}
		r, n := utf8.DecodeRune(text)
		text = text[n:]
		if b, ok := charmap.Macintosh.EncodeRune(r); ok && r != utf8.RuneError {
			out = append(out, b)
		} else {
			out = append(out, unmappable)
		}
	}
	return out
}

// SplitIncomplete splits a trailing partial UTF-8 sequence off text so a
// stream can be converted chunk by chunk.
func SplitIncomplete(text []byte) (whole, rest []byte) {
	for i := len(text) - 1; i >= 0 && i >= len(text)-utf8.UTFMax; i-- {
		c := text[i]
		if c < 0x80 {
			break
		}
		if c&0xC0 == 0xC0 {
			if !utf8.FullRune(text[i:]) {
				return text[:i], text[i:]
			}
			break
		}
	}
	return text, nil
}
