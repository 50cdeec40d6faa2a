// Package mapper runs a loaded rule set against registered module images and
// writes the resolved addresses to output slots and engine callbacks.
//
// An Engine is single-threaded. MapAllSymbols is normally called twice: once
// eagerly after the modules are registered, and once more with deferred set
// when the runtime state deferred conditions depend on is available. Slot
// readers on other goroutines must synchronize with the pass themselves.
package mapper

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"symmap/internal/disasm"
	"symmap/internal/imagex"
	"symmap/internal/logging"
	"symmap/internal/mapping"
	"symmap/internal/pattern"
	"symmap/internal/slots"
)

// MaxChainDepth is the default limit on nested NextSymbol chains.
const MaxChainDepth = 16

// maxStringLen bounds C string reads done by conditions.
const maxStringLen = 4096

// Result is what a target action, or an engine callback, reports back.
type Result int

const (
	Success Result = iota
	Fail
	TryNext // keep scanning for further occurrences
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Fail:
		return "Fail"
	case TryNext:
		return "TryNext"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Callback receives the address a target resolved to.
type Callback func(addr uint64) Result

// StringTable resolves interned string handles for FixedString conditions.
type StringTable interface {
	ResolveString(handle uint64) (string, bool)
}

// StringTableFunc adapts a function to StringTable.
type StringTableFunc func(handle uint64) (string, bool)

func (f StringTableFunc) ResolveString(handle uint64) (string, bool) { return f(handle) }

// ImportResolver resolves an exported procedure of a loaded module.
type ImportResolver interface {
	ResolveImport(module, proc string) (uint64, error)
}

type Engine struct {
	log       *log.Logger
	rules     *mapping.RuleSet
	slots     *slots.Table
	revision  int
	maxDepth  int
	strings   StringTable
	imports   ImportResolver
	modules   map[string]*imagex.Image
	order     []string
	callbacks map[string]Callback

	failed         bool
	failedCritical bool
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSlots sets the table named slot refs are written to.
func WithSlots(t *slots.Table) Option {
	return func(e *Engine) { e.slots = t }
}

// WithRevision sets the binary revision version guards compare against.
func WithRevision(rev int) Option {
	return func(e *Engine) { e.revision = rev }
}

func WithStringTable(st StringTable) Option {
	return func(e *Engine) { e.strings = st }
}

func WithImportResolver(r ImportResolver) Option {
	return func(e *Engine) { e.imports = r }
}

func WithMaxChainDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// New returns an engine for rules. Without WithStringTable, string handles
// are read as pointers to C strings in module memory. Without
// WithImportResolver, imports are resolved from the export tables of
// registered modules.
func New(rules *mapping.RuleSet, opts ...Option) *Engine {
	if rules == nil {
		rules = mapping.NewRuleSet()
	}
	e := &Engine{
		log:       logging.Discard(),
		rules:     rules,
		maxDepth:  MaxChainDepth,
		modules:   make(map[string]*imagex.Image),
		callbacks: make(map[string]Callback),
	}
	for _, o := range opts {
		o(e)
	}
	if e.strings == nil {
		e.strings = moduleStrings{e}
	}
	if e.imports == nil {
		e.imports = registryImports{e}
	}
	return e
}

// AddModule loads the image at path and registers it under name.
func (e *Engine) AddModule(name, path string) error {
	im, err := imagex.Open(path)
	if err != nil {
		e.log.Error("Couldn't load module", "module", name, "path", path, "err", err)
		return fmt.Errorf("add module %s: %w", name, err)
	}
	return e.AddImage(name, im)
}

// AddProcessModule loads path into the current process and registers the
// live mapped image. Windows only.
func (e *Engine) AddProcessModule(name, path string) error {
	im, err := imagex.LoadProcessModule(path)
	if err != nil {
		e.log.Error("Couldn't load module", "module", name, "path", path, "err", err)
		return fmt.Errorf("add module %s: %w", name, err)
	}
	return e.AddImage(name, im)
}

// AddImage registers an already mapped image under name.
func (e *Engine) AddImage(name string, im *imagex.Image) error {
	if _, ok := e.modules[name]; ok {
		return fmt.Errorf("%w: %s", ErrModuleExists, name)
	}
	e.modules[name] = im
	e.order = append(e.order, name)
	e.log.Debug("Registered module", "module", name, "format", im.Format,
		"base", fmt.Sprintf("%#x", im.Base), "size", len(im.Data),
		"text", fmt.Sprintf("%#x+%#x", im.Code.Start, im.Code.Size))
	return nil
}

// Module returns a registered image.
func (e *Engine) Module(name string) (*imagex.Image, bool) {
	im, ok := e.modules[name]
	return im, ok
}

// Modules returns registered module names in registration order.
func (e *Engine) Modules() []string { return slices.Clone(e.order) }

// AddCallback registers a named engine callback. A later registration under
// the same name replaces the earlier one.
func (e *Engine) AddCallback(name string, fn Callback) {
	e.callbacks[name] = fn
}

func (e *Engine) Revision() int { return e.revision }

// HasFailedMappings reports whether any non-AllowFail mapping failed.
func (e *Engine) HasFailedMappings() bool { return e.failed }

// HasFailedCriticalMappings reports whether a critical mapping failed.
func (e *Engine) HasFailedCriticalMappings() bool { return e.failedCritical }

// Read returns n bytes at addr from whichever module contains it.
func (e *Engine) Read(addr, n uint64) ([]byte, error) {
	im := e.moduleAt(addr)
	if im == nil {
		return nil, fmt.Errorf("%w: %#x", imagex.ErrOutOfBounds, addr)
	}
	return im.Slice(addr, n)
}

func (e *Engine) moduleAt(addr uint64) *imagex.Image {
	for _, name := range e.order {
		if im := e.modules[name]; im.Contains(addr) {
			return im
		}
	}
	return nil
}

func (e *Engine) readPtr(addr uint64) (uint64, error) {
	im := e.moduleAt(addr)
	if im == nil {
		return 0, fmt.Errorf("%w: %#x", imagex.ErrOutOfBounds, addr)
	}
	return im.ReadUint64(addr)
}

// resolveRef decodes the reference of the instruction at addr. Only bytes
// inside the containing module are looked at.
func (e *Engine) resolveRef(addr uint64) (uint64, error) {
	im := e.moduleAt(addr)
	if im == nil {
		return 0, fmt.Errorf("%w: %#x", imagex.ErrOutOfBounds, addr)
	}
	code, err := im.Tail(addr, 7)
	if err != nil {
		return 0, err
	}
	return disasm.ResolveRef(code, addr)
}

// moduleStrings treats a string handle as the address of a C string inside a
// registered module.
type moduleStrings struct{ e *Engine }

func (m moduleStrings) ResolveString(handle uint64) (string, bool) {
	im := m.e.moduleAt(handle)
	if im == nil {
		return "", false
	}
	s, err := im.ReadCString(handle, maxStringLen)
	return s, err == nil
}

// MapAllSymbols runs every non-custom mapping whose Deferred flag equals
// deferred, in name order. The eager pass also resolves DllImports.
func (e *Engine) MapAllSymbols(deferred bool) *Report {
	rep := &Report{Deferred: deferred}
	if e.slots != nil {
		e.slots.BeginPass()
	}

	for _, name := range e.rules.Names() {
		m := e.rules.Mappings[name]
		if m.Scope == mapping.ScopeCustom || m.Deferred() != deferred {
			continue
		}
		_ = e.mapRule(&run{report: rep}, m, nil)
	}

	if !deferred {
		for _, imp := range e.rules.Imports {
			e.mapImport(rep, imp)
		}
	}

	e.log.Info("Mapping pass finished", "deferred", deferred,
		"mapped", len(rep.Mapped), "skipped", len(rep.Skipped),
		"failed", len(rep.Failures), "imports", rep.Imports)
	return rep
}

// MapSymbol runs one mapping against its module.
func (e *Engine) MapSymbol(name string) error {
	return e.mapNamed(&run{report: &Report{}}, name, nil)
}

// MapSymbolInRange runs one mapping over [start, start+size). The range is
// clamped to the module that contains start.
func (e *Engine) MapSymbolInRange(name string, start, size uint64) error {
	return e.mapNamed(&run{report: &Report{}}, name, &imagex.Range{Start: start, Size: size})
}

// run is the state of one top-level mapping request.
type run struct {
	report *Report
	chain  []string
}

func (e *Engine) mapNamed(rn *run, name string, custom *imagex.Range) error {
	m, ok := e.rules.Get(name)
	if !ok {
		e.log.Error("Can't execute nonexistent mapping", "mapping", name)
		return fmt.Errorf("%w: %s", ErrUnknownMapping, name)
	}
	return e.mapRule(rn, m, custom)
}

func (e *Engine) mapRule(rn *run, m *mapping.Mapping, custom *imagex.Range) error {
	if !m.Version.Allows(e.revision) {
		e.log.Debug("Skipping mapping for this revision", "mapping", m.Name, "guard", m.Version, "revision", e.revision)
		rn.report.Skipped = append(rn.report.Skipped, m.Name)
		return nil
	}

	if slices.Contains(rn.chain, m.Name) {
		return e.fail(rn, m, fmt.Errorf("%w: %v -> %s", ErrChainCycle, rn.chain, m.Name))
	}
	if len(rn.chain) >= e.maxDepth {
		return e.fail(rn, m, fmt.Errorf("%w: depth %d", ErrChainTooDeep, len(rn.chain)))
	}
	rn.chain = append(rn.chain, m.Name)
	defer func() { rn.chain = rn.chain[:len(rn.chain)-1] }()

	im, r, err := e.scanRange(m, custom)
	if err != nil {
		return e.fail(rn, m, err)
	}
	data, err := im.Slice(r.Start, r.Size)
	if err != nil {
		return e.fail(rn, m, err)
	}

	e.log.Debug("Try mapping", "mapping", m.Name, "start", fmt.Sprintf("%#x", r.Start), "end", fmt.Sprintf("%#x", r.End()))

	var (
		mapped, matched bool
		first           uint64
	)
	m.Pattern.Scan(data, func(off int) pattern.ScanAction {
		at := r.Start + uint64(off)
		for _, c := range m.Conditions {
			if !e.evalCondition(c, at) {
				return pattern.Continue
			}
		}

		e.log.Debug("Match", "mapping", m.Name, "at", fmt.Sprintf("%#x", at))
		matched = true
		action := pattern.Finish
		// Every target runs even after an earlier one fails.
		for i := range m.Targets {
			res := e.execTarget(rn, m, &m.Targets[i], at)
			e.log.Debug("Action", "mapping", m.Name, "target", m.Targets[i].Name, "result", res)
			if res == Success && !mapped {
				mapped = true
				first = at
			}
			if res == TryNext {
				action = pattern.Continue
			}
		}
		return action
	})

	switch {
	case mapped:
		rn.report.Mapped = append(rn.report.Mapped, Resolution{Mapping: m.Name, Match: first})
		return nil
	case !matched:
		return e.fail(rn, m, ErrNoMatch)
	default:
		return e.fail(rn, m, ErrNoTargetSucceeded)
	}
}

// scanRange picks the image and range a mapping scans.
func (e *Engine) scanRange(m *mapping.Mapping, custom *imagex.Range) (*imagex.Image, imagex.Range, error) {
	if m.Scope == mapping.ScopeCustom {
		if custom == nil {
			return nil, imagex.Range{}, ErrCustomRangeMissing
		}
		im := e.moduleAt(custom.Start)
		if im == nil {
			return nil, imagex.Range{}, fmt.Errorf("%w: %#x", ErrRangeOutsideModules, custom.Start)
		}
		r := *custom
		if end := im.Full().End(); r.Size > end-r.Start {
			r.Size = end - r.Start
		}
		return im, r, nil
	}

	im, ok := e.modules[m.Module]
	if !ok {
		return nil, imagex.Range{}, fmt.Errorf("%w: %s", ErrModuleNotLoaded, m.Module)
	}
	if m.Scope == mapping.ScopeBinary {
		return im, im.Full(), nil
	}
	return im, im.Code, nil
}

// fail aggregates a mapping failure. AllowFail failures are recorded as
// suppressed and leave the engine flags alone.
func (e *Engine) fail(rn *run, m *mapping.Mapping, err error) error {
	me := &MappingError{Mapping: m.Name, Critical: m.Critical(), Err: err}
	if m.AllowFail() {
		e.log.Debug("Optional mapping failed", "mapping", m.Name, "err", err)
		rn.report.Suppressed = append(rn.report.Suppressed, me)
		return me
	}

	e.log.Error("Mapping failed", "mapping", m.Name, "critical", m.Critical(), "err", err)
	e.failed = true
	if m.Critical() {
		e.failedCritical = true
	}
	rn.report.Failures = append(rn.report.Failures, me)
	return me
}

func (e *Engine) evalCondition(c mapping.Condition, match uint64) bool {
	ref, err := e.resolveRef(match + uint64(c.Offset))
	if err != nil {
		return false
	}

	switch c.Type {
	case mapping.CondString:
		im := e.moduleAt(ref)
		if im == nil {
			return false
		}
		s, err := im.ReadCString(ref, maxStringLen)
		return err == nil && s == c.Value

	case mapping.CondFixedString:
		return e.fixedStringAt(ref, c.Value)

	case mapping.CondFixedStringIndirect:
		p, err := e.readPtr(ref)
		if err != nil || p == 0 || e.moduleAt(p) == nil {
			return false
		}
		return e.fixedStringAt(p, c.Value)
	}
	return false
}

func (e *Engine) fixedStringAt(addr uint64, want string) bool {
	h, err := e.readPtr(addr)
	if err != nil || h == 0 {
		return false
	}
	s, ok := e.strings.ResolveString(h)
	return ok && s == want
}

func (e *Engine) execTarget(rn *run, m *mapping.Mapping, t *mapping.Target, match uint64) Result {
	addr := match + uint64(t.Offset)
	if t.Type == mapping.ActionIndirect {
		ref, err := e.resolveRef(addr)
		if err != nil {
			e.log.Error("Could not map match to symbol address", "mapping", m.Name, "target", t.Name, "err", err)
			return Fail
		}
		addr = ref
	}

	if !t.Slot.IsZero() {
		if e.slots.Written(t.Slot) {
			e.log.Debug("Overwriting slot", "mapping", m.Name, "slot", t.SlotName)
		}
		if err := e.slots.Set(t.Slot, addr); err != nil {
			e.log.Error("Could not write slot", "mapping", m.Name, "slot", t.SlotName, "err", err)
			return Fail
		}
	}

	if t.NextSymbol != "" {
		custom := &imagex.Range{Start: addr, Size: t.NextSymbolSeekSize}
		if err := e.mapNamed(rn, t.NextSymbol, custom); err != nil {
			return Fail
		}
	}

	if t.EngineCallback != "" {
		cb, ok := e.callbacks[t.EngineCallback]
		if !ok {
			e.log.Error("Target failed", "mapping", m.Name, "target", t.Name, "callback", t.EngineCallback, "err", ErrUnknownCallback)
			return Fail
		}
		return cb(addr)
	}
	return Success
}
