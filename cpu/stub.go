//go:build !unicorn
// +build !unicorn

package cpu

import (
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// NewUnicorn reports that no CPU core was compiled in. Build with
// -tags unicorn and libunicorn installed.
func NewUnicorn(mem *memory.Arena, page memory.SystemPage, hook Hook) (Core, error) {
	return nil, moserrors.ErrNoCPUCore
}
