// Package macpath converts file names and text between the classic Mac OS
// conventions (':' separators, MacRoman, CR line ends) and the host ones.
package macpath

import "strings"

// Kind is the guessed format of a path.
type Kind int

const (
	Unknown Kind = iota
	Unix
	Mac
)

func (k Kind) String() string {
	switch k {
	case Unix:
		return "unix"
	case Mac:
		return "mac"
	default:
		return "unknown"
	}
}

// Guess adds up format indicators in name: '/' and well-formed UTF-8
// sequences count for Unix, ':' and stray high bytes count for Mac. A tie,
// including no indicators at all, is Unknown.
func Guess(name string) Kind {
	unix, mac := 0, 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '/':
			unix++
		case c == ':':
			mac++
		case c < 0x80:
		default:
			if n := utf8Len(name[i:]); n > 1 {
				unix++
				i += n - 1
			} else {
				mac++
			}
		}
	}
	switch {
	case unix > mac:
		return Unix
	case mac > unix:
		return Mac
	}
	return Unknown
}

// utf8Len returns the length of the multi-byte UTF-8 sequence at the start
// of s, or 0 when there is none.
func utf8Len(s string) int {
	cont := func(n int) bool {
		if len(s) < n {
			return false
		}
		for i := 1; i < n; i++ {
			if s[i]&0xC0 != 0x80 {
				return false
			}
		}
		return true
	}
	c := s[0]
	switch {
	case c&0xE0 == 0xC0 && cont(2):
		return 2
	case c&0xF0 == 0xE0 && cont(3):
		return 3
	case c&0xF8 == 0xF0 && cont(4):
		return 4
	}
	return 0
}

// Convert rewrites name into the dst format. Names whose format cannot be
// guessed, or that already are in dst format, are returned unchanged.
func Convert(name string, dst Kind) string {
	src := Guess(name)
	if src == dst || src == Unknown {
		return name
	}
	if src == Mac {
		name = fromMac(name)
	}
	if dst == Mac {
		name = toMac(name)
	}
	return name
}

// ToUnix converts a guest file name to a host path.
func ToUnix(name string) string { return Convert(name, Unix) }

// ToMac converts a host path to a guest file name.
func ToMac(name string) string { return Convert(name, Mac) }

func leadingQuotes(name string) (string, string) {
	i := 0
	for i < len(name) && strings.IndexByte("\"'`", name[i]) >= 0 {
		i++
	}
	return name[:i], name[i:]
}

// fromMac turns "Vol:dir:file" into "/Vol/dir/file", ":dir:file" into
// "dir/file" and every additional ':' into a parent directory step.
func fromMac(name string) string {
	quotes, src := leadingQuotes(name)
	var b strings.Builder
	b.WriteString(quotes)

	switch {
	case strings.HasPrefix(src, ":"):
		src = src[1:]
		for strings.HasPrefix(src, ":") {
			b.WriteString("../")
			src = src[1:]
		}
	case strings.Contains(src, ":"):
		b.WriteByte('/')
	}
	for i := 0; i < len(src); i++ {
		if src[i] != ':' {
			b.WriteByte(src[i])
			continue
		}
		b.WriteByte('/')
		for i+1 < len(src) && src[i+1] == ':' {
			b.WriteString("../")
			i++
		}
	}
	return string(DecodeText([]byte(b.String())))
}

// toMac is the inverse of fromMac. Relative paths gain a leading ':', "."
// components vanish and ".." components become an extra ':'.
func toMac(name string) string {
	quotes, src := leadingQuotes(name)
	var b strings.Builder
	b.WriteString(quotes)

	// dots consumes a "./", "../", "." or ".." component at the start of
	// rest and returns what is left, still pointing at the separator.
	dots := func(rest string) (string, bool) {
		switch {
		case strings.HasPrefix(rest, "../"):
			b.WriteByte(':')
			return rest[2:], true
		case strings.HasPrefix(rest, "./"):
			return rest[1:], true
		case rest == "..":
			b.WriteString("::")
			return "", true
		case rest == ".":
			b.WriteByte(':')
			return "", true
		}
		return rest, false
	}

	if strings.HasPrefix(src, "/") {
		src = src[1:]
	} else if rest, ok := dots(src); ok {
		src = rest
	} else {
		b.WriteByte(':')
	}
	for len(src) > 0 {
		c := src[0]
		src = src[1:]
		if c != '/' {
			b.WriteByte(c)
			continue
		}
		src = strings.TrimLeft(src, "/")
		if rest, ok := dots(src); ok {
			src = rest
			continue
		}
		b.WriteByte(':')
	}
	return string(EncodeText([]byte(b.String())))
}

// Name returns the leaf of a path in either format.
func Name(p string) string {
	return p[strings.LastIndexAny(p, "/:")+1:]
}

// NameUnix returns the leaf of a host path, keeping any ':' in it.
func NameUnix(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}
