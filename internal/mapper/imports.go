package mapper

import (
	"fmt"

	"symmap/internal/mapping"
)

// registryImports resolves imports from the export tables of the images
// registered with the engine. Module names compare the way the Windows
// loader compares them.
type registryImports struct{ e *Engine }

func (r registryImports) ResolveImport(module, proc string) (uint64, error) {
	for _, name := range r.e.order {
		im := r.e.modules[name]
		if name != module && !im.MatchesName(module) {
			continue
		}
		exp, ok := im.Export(proc)
		if !ok {
			return 0, fmt.Errorf("%w: %s!%s", ErrProcNotExported, module, proc)
		}
		return exp.VA, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrModuleNotLoaded, module)
}

// mapImport resolves one DllImport. Failures are reported but never set the
// engine failure flags.
func (e *Engine) mapImport(rep *Report, imp mapping.DllImport) {
	addr, err := e.imports.ResolveImport(imp.Module, imp.Proc)
	if err == nil {
		err = e.slots.Set(imp.Slot, addr)
	}
	if err != nil {
		ie := &ImportError{Symbol: imp.Symbol, Module: imp.Module, Proc: imp.Proc, Err: err}
		e.log.Error("Import failed", "symbol", imp.Symbol, "module", imp.Module, "proc", imp.Proc, "err", err)
		rep.ImportFailures = append(rep.ImportFailures, ie)
		return
	}
	e.log.Debug("Resolved import", "symbol", imp.Symbol, "addr", fmt.Sprintf("%#x", addr))
	rep.Imports++
}
