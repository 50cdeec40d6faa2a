package imagex

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Binject/debug/pe"
)

const scnMemExecute = 0x20000000

// CodeSectionName is the section searched for the code-only range.
const CodeSectionName = ".text"

// peLayout is the subset of the optional header the loader layout needs.
type peLayout struct {
	imageBase     uint64
	sizeOfImage   uint32
	sizeOfHeaders uint32
}

func layoutOf(f *pe.File) (peLayout, error) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		return peLayout{oh.ImageBase, oh.SizeOfImage, oh.SizeOfHeaders}, nil
	case *pe.OptionalHeader32:
		return peLayout{uint64(oh.ImageBase), oh.SizeOfImage, oh.SizeOfHeaders}, nil
	}
	return peLayout{}, errors.New("missing optional header")
}

// parsePE maps a PE file the way the Windows loader would: headers at the
// image base and every section at its virtual address.
func parsePE(raw []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse pe: %w", err)
	}
	defer f.Close()

	lay, err := layoutOf(f)
	if err != nil {
		return nil, err
	}
	if lay.sizeOfImage == 0 {
		return nil, errors.New("pe: SizeOfImage is zero")
	}

	data := make([]byte, lay.sizeOfImage)
	copy(data, raw[:min(int(lay.sizeOfHeaders), len(raw), len(data))])

	for _, s := range f.Sections {
		n := s.Size
		if s.VirtualSize != 0 && s.VirtualSize < n {
			n = s.VirtualSize
		}
		if uint64(s.Offset) >= uint64(len(raw)) || uint64(s.VirtualAddress) >= uint64(len(data)) {
			continue
		}
		src := raw[s.Offset:min(uint64(s.Offset)+uint64(n), uint64(len(raw)))]
		copy(data[s.VirtualAddress:], src)
	}

	im := &Image{Format: FormatPE, Base: lay.imageBase, Data: data}
	im.Sections, im.Code = peSections(f, lay.imageBase)
	im.clampCode()
	im.Exports = peExports(f, lay.imageBase)
	im.indexExports()
	return im, nil
}

// peSections lists sections and picks the code range: the .text section's
// raw size, or the whole image if no .text exists.
func peSections(f *pe.File, base uint64) ([]Section, Range) {
	var secs []Section
	code := Range{}
	for _, s := range f.Sections {
		size := uint64(s.VirtualSize)
		if size == 0 {
			size = uint64(s.Size)
		}
		secs = append(secs, Section{
			Name: s.Name,
			VA:   base + uint64(s.VirtualAddress),
			Size: size,
			Exec: s.Characteristics&scnMemExecute != 0,
		})
		if code.Size == 0 && s.Name == CodeSectionName {
			code = Range{Start: base + uint64(s.VirtualAddress), Size: uint64(s.Size)}
		}
	}
	return secs, code
}

func peExports(f *pe.File, base uint64) []Export {
	exps, err := f.Exports()
	if err != nil {
		return nil
	}
	out := make([]Export, 0, len(exps))
	for _, e := range exps {
		out = append(out, Export{
			Name:      e.Name,
			Demangled: CachedDemangle(e.Name),
			VA:        base + uint64(e.VirtualAddress),
		})
	}
	return out
}
