package mapper

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatch             = errors.New("no match found")
	ErrNoTargetSucceeded   = errors.New("no target action succeeded")
	ErrCustomRangeMissing  = errors.New("custom-scope mapping run without a range")
	ErrRangeOutsideModules = errors.New("range does not start inside a registered module")
	ErrUnknownMapping      = errors.New("unknown mapping")
	ErrChainCycle          = errors.New("chained mapping cycle")
	ErrChainTooDeep        = errors.New("chained mappings nested too deeply")
	ErrUnknownCallback     = errors.New("target references unregistered engine callback")
	ErrModuleNotLoaded     = errors.New("module not loaded")
	ErrModuleExists        = errors.New("module already registered")
	ErrProcNotExported     = errors.New("procedure not exported")
)

// MappingError is a mapping that failed to resolve.
type MappingError struct {
	Mapping  string
	Critical bool
	Err      error
}

func (e *MappingError) Error() string {
	if e.Critical {
		return fmt.Sprintf("mapping %q [CRITICAL]: %v", e.Mapping, e.Err)
	}
	return fmt.Sprintf("mapping %q: %v", e.Mapping, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// ImportError is a DllImport that could not be resolved.
type ImportError struct {
	Symbol string
	Module string
	Proc   string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s (%s!%s): %v", e.Symbol, e.Module, e.Proc, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }
