//go:build windows

package imagex

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/Binject/debug/pe"
	"golang.org/x/sys/windows"
)

// memoryReaderAt implements io.ReaderAt for in-memory data
type memoryReaderAt struct {
	data []byte
}

func (r *memoryReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, fmt.Errorf("offset out of range")
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = fmt.Errorf("EOF")
	}
	return n, err
}

// LoadProcessModule loads path into the current process (or finds it if it
// is already loaded) and returns a view over the live mapped image.
func LoadProcessModule(path string) (*Image, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't load module %q: %w", path, err)
	}
	base := uintptr(h)

	hdr := unsafe.Slice((*byte)(unsafe.Pointer(base)), 0x400)
	if hdr[0] != 'M' || hdr[1] != 'Z' {
		return nil, fmt.Errorf("module %q: invalid DOS signature", path)
	}
	peOff := binary.LittleEndian.Uint32(hdr[0x3c:])
	if peOff+24+60 > uint32(len(hdr)) {
		return nil, fmt.Errorf("module %q: PE offset too large: %d", path, peOff)
	}
	// SizeOfImage lives 56 bytes into the optional header.
	sizeOfImage := binary.LittleEndian.Uint32(hdr[peOff+24+56:])

	data := unsafe.Slice((*byte)(unsafe.Pointer(base)), sizeOfImage)
	f, err := pe.NewFileFromMemory(&memoryReaderAt{data: data})
	if err != nil {
		return nil, fmt.Errorf("couldn't get module info for %q: %w", path, err)
	}
	defer f.Close()

	im := &Image{Path: path, Name: path, Format: FormatPE, Base: uint64(base), Data: data}
	im.Sections, im.Code = peSections(f, im.Base)
	im.clampCode()
	im.Exports = peExports(f, im.Base)
	im.indexExports()
	return im, nil
}
