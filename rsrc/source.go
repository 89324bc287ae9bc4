package rsrc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
	"golang.org/x/sys/unix"
)

// DefaultToolDir is searched after $MOSRUN_PATH.
const DefaultToolDir = "/usr/local/lib/mosrun"

// xattr names of a resource fork: macOS, then the user namespace Linux
// file servers use.
var forkAttrs = []string{"com.apple.ResourceFork", "user.com.apple.ResourceFork"}

const (
	appleDoubleMagic  = 0x00051607
	appleDoubleForkID = 2
)

// Fork is a resource fork read from one of the sources.
type Fork struct {
	Data   []byte
	Origin string
}

// ToolPath resolves a tool name. Absolute paths are used as is; other
// names are looked up in $MOSRUN_PATH, then in the given directories.
func ToolPath(name string, dirs ...string) string {
	if filepath.IsAbs(name) {
		return name
	}
	candidates := []string{}
	if env := os.Getenv("MOSRUN_PATH"); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, dirs...)
	candidates = append(candidates, DefaultToolDir)
	for _, dir := range candidates {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(DefaultToolDir, name)
}

// ReadFork tries the xattr fork, the AppleDouble "._" sidecar, the plain
// file and finally the embedded bytes. The first source that yields data
// wins.
func ReadFork(path string, embedded []byte) (*Fork, error) {
	if path != "" {
		if data, attr, ok := readForkAttr(path); ok {
			return &Fork{Data: data, Origin: path + " [" + attr + "]"}, nil
		}
		dot := filepath.Join(filepath.Dir(path), "._"+filepath.Base(path))
		if data, err := os.ReadFile(dot); err == nil {
			log.Trace(log.ResourceModule, "loading sidecar", "path", dot)
			return &Fork{Data: appleDoubleFork(data), Origin: dot}, nil
		}
		if data, err := os.ReadFile(path); err == nil {
			return &Fork{Data: data, Origin: path}, nil
		}
	}
	if len(embedded) > 0 {
		return &Fork{Data: embedded, Origin: "(embedded)"}, nil
	}
	return nil, fmt.Errorf("%s: %w", path, moserrors.ErrNoApplication)
}

func readForkAttr(path string) ([]byte, string, bool) {
	for _, attr := range forkAttrs {
		size, err := unix.Getxattr(path, attr, nil)
		if err != nil || size <= 0 {
			if err != nil && !errors.Is(err, unix.ENODATA) && !errors.Is(err, unix.ENOTSUP) {
				log.Trace(log.ResourceModule, "xattr", "path", path, "attr", attr, "err", err)
			}
			continue
		}
		buf := make([]byte, size)
		n, err := unix.Getxattr(path, attr, buf)
		if err != nil {
			continue
		}
		log.Trace(log.ResourceModule, "resource fork from xattr", "path", path, "size", n)
		return buf[:n], attr, true
	}
	return nil, "", false
}

// appleDoubleFork extracts entry 2 of an AppleDouble file. Anything else
// is taken to be a raw fork.
func appleDoubleFork(data []byte) []byte {
	if len(data) < 26 || common.BE32(data) != appleDoubleMagic {
		return data
	}
	n := int(common.BE16(data[24:]))
	for i := 0; i < n; i++ {
		e := 26 + i*12
		if e+12 > len(data) {
			break
		}
		if common.BE32(data[e:]) != appleDoubleForkID {
			continue
		}
		off, length := common.BE32(data[e+4:]), common.BE32(data[e+8:])
		if uint64(off)+uint64(length) <= uint64(len(data)) {
			return data[off : off+length]
		}
	}
	return data
}
