package moserrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorNameAndCode(t *testing.T) {
	wrapped := fmt.Errorf("free 0x00004010: %w", ErrDoubleFree)
	assert.ErrorIs(t, wrapped, ErrDoubleFree)
	assert.Equal(t, "DoubleFree", GetErrorName(ErrDoubleFree))
	assert.Equal(t, "M2", GetErrorCode(ErrDoubleFree))
	assert.Equal(t, "No Error", GetErrorName(nil))
}

func TestOSErrEncoding(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFD5), FnfErr.Reg())
	assert.Equal(t, uint16(0xFF94), MemFullErr.Word())
	assert.Equal(t, "paramErr", ParamErr.String())
	assert.Equal(t, "OSErr(-1)", OSErr(-1).String())
}
