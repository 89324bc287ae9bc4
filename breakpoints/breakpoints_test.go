package breakpoints

import (
	"testing"

	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/traps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *memory.Arena) {
	t.Helper()
	mem, err := memory.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	return New(mem), mem
}

func TestInstallResolvesAgainstSegmentBase(t *testing.T) {
	m, mem := newTestManager(t)
	bp := m.Add(2, 0x10, "X")
	assert.Equal(t, Registered, bp.State)

	mem.WriteUnsafe16(0x5010, 0x4E56)
	var patched []memory.GuestPtr
	mem.OnPatch(func(addr memory.GuestPtr, size uint32) { patched = append(patched, addr) })

	assert.Equal(t, 0, m.Install(3, 0x7000))
	assert.Equal(t, 1, m.Install(2, 0x5000))

	assert.Equal(t, memory.GuestPtr(0x5010), bp.Address)
	assert.Equal(t, uint16(0x4E56), bp.Original)
	assert.Equal(t, traps.OpBreakpoint, mem.ReadUnsafe16(0x5010))
	assert.Equal(t, Installed, bp.State)
	assert.Equal(t, []memory.GuestPtr{0x5010}, patched)
	assert.Same(t, bp, m.Find(0x5010))
}

func TestHitReplaysOriginalOnce(t *testing.T) {
	m, mem := newTestManager(t)
	mem.WriteUnsafe16(0x6004, 0x7001)
	bp := m.Add(1, 4, "")
	m.Install(1, 0x6000)

	word := mem.ReadUnsafe16(0x6004)
	assert.Equal(t, traps.OpBreakpoint, m.Fetch(0x6004, word))

	require.Same(t, bp, m.Hit(0x6004))
	assert.Equal(t, Hit, bp.State)
	assert.Equal(t, uint16(0x7001), m.Fetch(0x6004, word))
	assert.Equal(t, uint16(0x1234), m.Fetch(0x6008, 0x1234))

	m.Advance(0x6004)
	assert.Same(t, bp, m.Pending())
	m.Advance(0x6006)
	assert.Nil(t, m.Pending())
	assert.Equal(t, Installed, bp.State)
	assert.Equal(t, traps.OpBreakpoint, m.Fetch(0x6004, word))
	// memory was never unpatched
	assert.Equal(t, traps.OpBreakpoint, mem.ReadUnsafe16(0x6004))
	assert.Equal(t, 1, bp.Hits)
}

func TestUnknownHitContinues(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Nil(t, m.Hit(0x9000))
	assert.Nil(t, m.Pending())
}

func TestLateRegistrationInstallsImmediately(t *testing.T) {
	m, mem := newTestManager(t)
	m.Install(5, 0x8000)
	mem.WriteUnsafe16(0x8020, 0x4E75)
	bp := m.Add(5, 0x20, "late")
	assert.Equal(t, Installed, bp.State)
	assert.Equal(t, uint16(0x4E75), bp.Original)
	assert.Equal(t, traps.OpBreakpoint, mem.ReadUnsafe16(0x8020))
}

func TestParseSpec(t *testing.T) {
	seg, off, label, err := ParseSpec("2:1A:main loop")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), seg)
	assert.Equal(t, uint32(0x1A), off)
	assert.Equal(t, "main loop", label)

	seg, off, label, err = ParseSpec("12:0x00400")
	require.NoError(t, err)
	assert.Equal(t, uint16(12), seg)
	assert.Equal(t, uint32(0x400), off)
	assert.Empty(t, label)

	for _, bad := range []string{"", "3", "x:10", "1:zz"} {
		_, _, _, err := ParseSpec(bad)
		assert.ErrorIs(t, err, moserrors.ErrBadBreakpointSpec, bad)
	}
}

func TestAllNewestFirst(t *testing.T) {
	m, _ := newTestManager(t)
	m.Add(1, 0, "a")
	m.Add(1, 2, "b")
	var labels []string
	for bp := range m.All() {
		labels = append(labels, bp.Label)
	}
	assert.Equal(t, []string{"b", "a"}, labels)
}
