// Package imagex provides bounds-checked views of executable images laid out
// the way the OS loader maps them: one contiguous byte range starting at the
// image base, plus the code-only sub-range and the export table.
package imagex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutOfBounds is returned for any access outside an image.
var ErrOutOfBounds = errors.New("address outside image bounds")

// Format identifies the container an image was loaded from.
type Format int

const (
	FormatRaw Format = iota
	FormatPE
	FormatELF
)

func (f Format) String() string {
	switch f {
	case FormatPE:
		return "PE"
	case FormatELF:
		return "ELF"
	default:
		return "raw"
	}
}

// Range is a half-open virtual address range [Start, Start+Size).
type Range struct {
	Start, Size uint64
}

// End returns the first address past the range.
func (r Range) End() uint64 { return r.Start + r.Size }

// Contains reports whether va lies inside the range.
func (r Range) Contains(va uint64) bool {
	return va >= r.Start && va-r.Start < r.Size
}

type Section struct {
	Name string
	VA   uint64
	Size uint64
	Exec bool
}

type Export struct {
	Name      string
	Demangled string
	VA        uint64
	Ordinal   uint32
}

// Image is a mapped module. Data[0] is the byte at Base. Images are never
// mutated after they are built.
type Image struct {
	Name     string
	Path     string
	Format   Format
	Base     uint64
	Data     []byte
	Code     Range
	Sections []Section
	Exports  []Export

	exportIdx map[string]int
}

// FromBytes wraps raw memory mapped at base. The whole range is treated as
// code unless code is non-empty.
func FromBytes(name string, base uint64, data []byte, code Range) *Image {
	im := &Image{Name: name, Format: FormatRaw, Base: base, Data: data, Code: code}
	if im.Code.Size == 0 {
		im.Code = im.Full()
	}
	im.clampCode()
	return im
}

// Open loads the image at path, detecting PE or ELF by magic.
func Open(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	var im *Image
	switch {
	case len(raw) >= 2 && raw[0] == 'M' && raw[1] == 'Z':
		im, err = parsePE(raw)
	case len(raw) >= 4 && bytes.Equal(raw[:4], []byte("\x7fELF")):
		im, err = parseELF(raw)
	default:
		return nil, fmt.Errorf("open %s: unrecognized image format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	im.Path = path
	im.Name = filepath.Base(path)
	return im, nil
}

// Full returns the range covering the whole image.
func (im *Image) Full() Range {
	return Range{Start: im.Base, Size: uint64(len(im.Data))}
}

// Contains reports whether va lies within the image.
func (im *Image) Contains(va uint64) bool {
	return im.Full().Contains(va)
}

// Slice returns exactly size bytes at va, or ErrOutOfBounds.
func (im *Image) Slice(va, size uint64) ([]byte, error) {
	if !im.Contains(va) {
		return nil, fmt.Errorf("%w: %#x", ErrOutOfBounds, va)
	}
	off := va - im.Base
	if size > uint64(len(im.Data))-off {
		return nil, fmt.Errorf("%w: %#x+%#x", ErrOutOfBounds, va, size)
	}
	return im.Data[off : off+size], nil
}

// Tail returns the bytes from va to the end of the image, at most max bytes.
func (im *Image) Tail(va, max uint64) ([]byte, error) {
	if !im.Contains(va) {
		return nil, fmt.Errorf("%w: %#x", ErrOutOfBounds, va)
	}
	off := va - im.Base
	end := uint64(len(im.Data))
	if max < end-off {
		end = off + max
	}
	return im.Data[off:end], nil
}

// ReadUint64 reads a little-endian pointer-sized value at va.
func (im *Image) ReadUint64(va uint64) (uint64, error) {
	b, err := im.Slice(va, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadCString reads a NUL-terminated string at va. The terminator must lie
// inside the image and within maxLen bytes.
func (im *Image) ReadCString(va uint64, maxLen int) (string, error) {
	b, err := im.Tail(va, uint64(maxLen)+1)
	if err != nil {
		return "", err
	}
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at %#x", ErrOutOfBounds, va)
	}
	return string(b[:i]), nil
}

// Export looks up an exported symbol by its raw name.
func (im *Image) Export(name string) (Export, bool) {
	if im.exportIdx == nil {
		return Export{}, false
	}
	i, ok := im.exportIdx[name]
	if !ok {
		return Export{}, false
	}
	return im.Exports[i], true
}

// Section returns the first section with the given name.
func (im *Image) Section(name string) (Section, bool) {
	for _, s := range im.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// MatchesName reports whether the image answers to a module name as the
// Windows loader would: case-insensitive, extension optional.
func (im *Image) MatchesName(module string) bool {
	want := strings.ToLower(module)
	for _, have := range []string{im.Name, filepath.Base(im.Path)} {
		have = strings.ToLower(have)
		if have == "" || have == "." {
			continue
		}
		if have == want || strings.TrimSuffix(have, filepath.Ext(have)) == strings.TrimSuffix(want, filepath.Ext(want)) {
			return true
		}
	}
	return false
}

func (im *Image) indexExports() {
	sort.SliceStable(im.Exports, func(i, j int) bool { return im.Exports[i].VA < im.Exports[j].VA })
	im.exportIdx = make(map[string]int, len(im.Exports))
	for i, e := range im.Exports {
		if e.Name == "" {
			continue
		}
		if _, dup := im.exportIdx[e.Name]; !dup {
			im.exportIdx[e.Name] = i
		}
	}
}

// clampCode keeps the code range inside the image; a code range that does
// not overlap the image falls back to the full image.
func (im *Image) clampCode() {
	full := im.Full()
	if !full.Contains(im.Code.Start) {
		im.Code = full
		return
	}
	if im.Code.End() > full.End() || im.Code.End() < im.Code.Start {
		im.Code.Size = full.End() - im.Code.Start
	}
}

// WithExports attaches an export table while the image is being built.
func (im *Image) WithExports(exps ...Export) *Image {
	im.Exports = append(im.Exports, exps...)
	for i := range im.Exports {
		if im.Exports[i].Demangled == "" {
			im.Exports[i].Demangled = CachedDemangle(im.Exports[i].Name)
		}
	}
	im.indexExports()
	return im
}
