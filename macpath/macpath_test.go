package macpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuess(t *testing.T) {
	assert.Equal(t, Unknown, Guess(""))
	assert.Equal(t, Unknown, Guess("test.c"))
	assert.Equal(t, Mac, Guess(":test.c"))
	assert.Equal(t, Mac, Guess("HD:Work:test.c"))
	assert.Equal(t, Unix, Guess("./test.c"))
	assert.Equal(t, Unix, Guess("/usr/lib/x"))
	assert.Equal(t, Unix, Guess("café.c"))
	assert.Equal(t, Mac, Guess("caf\x8e.c"))
	assert.Equal(t, Unknown, Guess("a:b/c"))
}

func TestMacToUnix(t *testing.T) {
	cases := map[string]string{
		":test.c":      "test.c",
		"::test.c":     "../test.c",
		":::test.c":    "../../test.c",
		":Examples:":   "Examples/",
		"Examples:":    "/Examples/",
		"HD:src:a.c":   "/HD/src/a.c",
		"HD:src::a.c":  "/HD/src/../a.c",
		"test.c":       "test.c",
		"\":Src:x.c\"": "\"Src/x.c\"",
		":caf\x8e":     "café",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToUnix(in), in)
	}
}

func TestUnixToMac(t *testing.T) {
	cases := map[string]string{
		"./test.c":      ":test.c",
		"../test.c":     "::test.c",
		"../../test.c":  ":::test.c",
		"src/a.c":       ":src:a.c",
		"src//a.c":      ":src:a.c",
		"src/./a.c":     ":src:a.c",
		"src/../a.c":    ":src::a.c",
		"src/":          ":src:",
		"/HD/src/a.c":   "HD:src:a.c",
		"/Volumes/x/..": "Volumes:x::",
		"'/HD/a.c'":     "'HD:a.c'",
		"./café.c":      ":caf\x8e.c",
		"test.c":        "test.c",
		"/HD/a世.c":      "HD:a$.c",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToMac(in), in)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	for _, p := range []string{"HD:src:a.c", "::up:file", ":rel:dir:"} {
		assert.Equal(t, p, ToMac(ToUnix(p)), p)
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "a.c", Name("HD:src:a.c"))
	assert.Equal(t, "a.c", Name("/usr/src/a.c"))
	assert.Equal(t, "a.c", Name("a.c"))
	assert.Equal(t, "", Name("HD:src:"))
	assert.Equal(t, "b:c", NameUnix("/a/b:c"))
}

func TestText(t *testing.T) {
	assert.Equal(t, "line\nsecond • café\n", string(DecodeText([]byte("line\rsecond \xa5 caf\x8e\r"))))
	assert.Equal(t, []byte("line\rcaf\x8e \xa5 $\r"), EncodeText([]byte("line\ncafé • 世\n")))
	assert.Equal(t, []byte("$"), EncodeText([]byte{0xff}))
}

func TestSplitIncomplete(t *testing.T) {
	whole, rest := SplitIncomplete([]byte("ab\xc3"))
	assert.Equal(t, []byte("ab"), whole)
	assert.Equal(t, []byte{0xc3}, rest)

	whole, rest = SplitIncomplete([]byte("café"))
	assert.Equal(t, []byte("café"), whole)
	assert.Nil(t, rest)

	whole, rest = SplitIncomplete([]byte("x\xe2\x80"))
	assert.Equal(t, []byte("x"), whole)
	assert.Equal(t, []byte{0xe2, 0x80}, rest)
}
