package imagex

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"strings"
)

const pageMask = 0xfff

// parseELF maps every PT_LOAD segment at its virtual address relative to
// the page-aligned lowest load address.
func parseELF(raw []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse elf: %w", err)
	}
	defer f.Close()

	var loads []*elf.Prog
	lo, hi := ^uint64(0), uint64(0)
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		loads = append(loads, p)
		lo = min(lo, p.Vaddr&^pageMask)
		hi = max(hi, p.Vaddr+p.Memsz)
	}
	if len(loads) == 0 {
		return nil, errors.New("elf: no loadable segments")
	}

	data := make([]byte, hi-lo)
	for _, p := range loads {
		n := min(p.Filesz, p.Memsz)
		dst := data[p.Vaddr-lo : p.Vaddr-lo+n]
		if _, err := p.ReadAt(dst, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("elf: read segment at %#x: %w", p.Vaddr, err)
		}
	}

	im := &Image{Format: FormatELF, Base: lo, Data: data}

	// Use true sections if present.
	for _, s := range f.Sections {
		if s.Type == elf.SHT_NULL || s.Addr == 0 {
			continue
		}
		im.Sections = append(im.Sections, Section{
			Name: s.Name,
			VA:   s.Addr,
			Size: s.Size,
			Exec: s.Flags&elf.SHF_EXECINSTR != 0,
		})
		if s.Name == CodeSectionName {
			im.Code = Range{Start: s.Addr, Size: s.Size}
		}
	}

	// Fallbacks if stripped.
	if im.Code.Size == 0 {
		for _, p := range loads {
			if p.Flags&elf.PF_X != 0 && p.Filesz > 0 {
				im.Code = Range{Start: p.Vaddr, Size: p.Filesz}
				break
			}
		}
	}
	im.clampCode()

	im.Exports = elfExports(f)
	im.indexExports()
	return im, nil
}

// elfExports collects defined function and object symbols from .dynsym,
// falling back to .symtab for binaries that export nothing dynamically.
func elfExports(f *elf.File) []Export {
	syms, err := f.DynamicSymbols()
	if err != nil || len(syms) == 0 {
		syms, _ = f.Symbols()
	}

	var out []Export
	for _, s := range syms {
		if s.Value == 0 || s.Section == elf.SHN_UNDEF {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT:
		default:
			continue
		}
		if strings.HasSuffix(s.Name, "@plt") {
			continue
		}
		out = append(out, Export{
			Name:      s.Name,
			Demangled: CachedDemangle(s.Name),
			VA:        s.Value,
		})
	}
	return out
}
