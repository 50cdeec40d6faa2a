//go:build windows

package mapper

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// ProcessImports resolves imports against modules already loaded into the
// current process.
type ProcessImports struct{}

func (ProcessImports) ResolveImport(module, proc string) (uint64, error) {
	name, err := windows.UTF16PtrFromString(module)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	if err := windows.GetModuleHandleEx(0, name, &h); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrModuleNotLoaded, module, err)
	}
	defer windows.FreeLibrary(h)

	addr, err := windows.GetProcAddress(h, proc)
	if err != nil {
		return 0, fmt.Errorf("%w: %s!%s: %v", ErrProcNotExported, module, proc, err)
	}
	return uint64(addr), nil
}
