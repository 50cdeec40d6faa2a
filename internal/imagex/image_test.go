package imagex

import (
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceBounds(t *testing.T) {
	im := FromBytes("Main", 0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Range{})

	b, err := im.Slice(0x1002, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, b)

	b, err = im.Slice(0x1000, 10)
	require.NoError(t, err)
	assert.Len(t, b, 10)

	for _, tc := range []struct{ va, size uint64 }{
		{0x0fff, 1},
		{0x100a, 0},
		{0x1008, 3},
		{0x1001, ^uint64(0)},
	} {
		_, err := im.Slice(tc.va, tc.size)
		assert.True(t, errors.Is(err, ErrOutOfBounds), "Slice(%#x, %#x) = %v", tc.va, tc.size, err)
	}
}

func TestTail(t *testing.T) {
	im := FromBytes("Main", 0x1000, []byte{1, 2, 3, 4}, Range{})
	b, err := im.Tail(0x1002, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, b)

	b, err = im.Tail(0x1000, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)

	_, err = im.Tail(0x1004, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestReadCString(t *testing.T) {
	im := FromBytes("Main", 0x400000, []byte("hello\x00world"), Range{})

	s, err := im.ReadCString(0x400000, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	// no terminator before the end of the image
	_, err = im.ReadCString(0x400006, 64)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// terminator beyond maxLen
	_, err = im.ReadCString(0x400000, 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestReadUint64(t *testing.T) {
	im := FromBytes("Main", 0, []byte{0x10, 0x20, 0, 0, 0, 0, 0, 0, 0xff}, Range{})
	v, err := im.ReadUint64(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2010), v)

	_, err = im.ReadUint64(2)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestCodeRangeClamp(t *testing.T) {
	data := make([]byte, 0x100)

	im := FromBytes("a", 0x1000, data, Range{Start: 0x1010, Size: 0x20})
	assert.Equal(t, Range{Start: 0x1010, Size: 0x20}, im.Code)

	im = FromBytes("b", 0x1000, data, Range{Start: 0x10f0, Size: 0x40})
	assert.Equal(t, Range{Start: 0x10f0, Size: 0x10}, im.Code)

	im = FromBytes("c", 0x1000, data, Range{Start: 0x5000, Size: 0x40})
	assert.Equal(t, im.Full(), im.Code)
}

func TestExportsAndNames(t *testing.T) {
	im := FromBytes("core.dll", 0x10000, make([]byte, 0x100), Range{}).WithExports(
		Export{Name: "_ZN3foo3barEv", VA: 0x10040},
		Export{Name: "Init", VA: 0x10010},
	)

	e, ok := im.Export("Init")
	require.True(t, ok)
	assert.Equal(t, uint64(0x10010), e.VA)

	e, ok = im.Export("_ZN3foo3barEv")
	require.True(t, ok)
	assert.Equal(t, "foo::bar()", e.Demangled)

	_, ok = im.Export("Missing")
	assert.False(t, ok)

	assert.True(t, im.MatchesName("CORE.DLL"))
	assert.True(t, im.MatchesName("core"))
	assert.False(t, im.MatchesName("kernel32.dll"))
}

func TestOpenRunningExecutable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	im, err := Open(exe)
	require.NoError(t, err)

	assert.NotEmpty(t, im.Data)
	assert.True(t, im.Contains(im.Code.Start))
	assert.LessOrEqual(t, im.Code.End(), im.Full().End())
	assert.NotZero(t, im.Code.Size)

	switch runtime.GOOS {
	case "windows":
		assert.Equal(t, FormatPE, im.Format)
	case "linux":
		assert.Equal(t, FormatELF, im.Format)
		text, ok := im.Section(CodeSectionName)
		require.True(t, ok)
		assert.Equal(t, Range{Start: text.VA, Size: text.Size}, im.Code)
	}
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	path := t.TempDir() + "/blob.bin"
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}
