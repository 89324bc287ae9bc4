package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/mosrun/emulator"
	"github.com/colorfulnotion/mosrun/rsrc"
)

func execute(t *testing.T, args ...string) (string, int, error) {
	t.Helper()
	code := 0
	root := newRootCmd(&code)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), code, err
}

func TestResourcesCommand(t *testing.T) {
	dir := t.TempDir()
	fork := rsrc.NewBuilder().
		Add(rsrc.TypeCODE, 0, "", 0, make([]byte, 16)).
		Add(rsrc.TypeCODE, 1, "Main", 0, []byte{0, 0, 0, 1, 0x4E, 0x75}).
		Bytes()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Tool"), fork, 0o644))

	out, code, err := execute(t, "resources", "--path", dir, "Tool")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "Main")

	_, code, err = execute(t, "resources", filepath.Join(dir, "Missing"))
	assert.Error(t, err)
	assert.Equal(t, emulator.ExitLoadFailed, code)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mosrun dev")
}

func TestRunRejectsBadFlags(t *testing.T) {
	_, code, err := execute(t, "run", "--heap", "lots", "Tool")
	assert.Error(t, err)
	assert.Equal(t, emulator.ExitFatal, code)
}
