//go:build !windows

package mapper

import "errors"

// ProcessImports resolves imports against modules already loaded into the
// current process. It is only available on Windows.
type ProcessImports struct{}

func (ProcessImports) ResolveImport(module, proc string) (uint64, error) {
	return 0, errors.New("process imports are only supported on windows")
}
