package mapping

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/charmbracelet/log"

	"symmap/internal/logging"
	"symmap/internal/pattern"
	"symmap/internal/slots"
)

// Loader builds a RuleSet from one or more rule documents.
//
// Items that fail validation are logged, recorded as LoadErrors and
// discarded; they never abort the document.
type Loader struct {
	log     *log.Logger
	slots   slots.Resolver
	modules map[string]struct{}
	rules   *RuleSet
	diags   []*LoadError
}

type Option func(*Loader)

func WithLogger(l *log.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithModules registers module names mappings may reference.
func WithModules(names ...string) Option {
	return func(ld *Loader) {
		for _, n := range names {
			ld.AddKnownModule(n)
		}
	}
}

// NewLoader returns a loader that resolves Symbol attributes through res.
// A nil resolver rejects every slot reference.
func NewLoader(res slots.Resolver, opts ...Option) *Loader {
	ld := &Loader{
		log:     logging.Discard(),
		slots:   res,
		modules: make(map[string]struct{}),
		rules:   NewRuleSet(),
	}
	for _, o := range opts {
		o(ld)
	}
	return ld
}

func (ld *Loader) AddKnownModule(name string) {
	ld.modules[name] = struct{}{}
}

// RuleSet returns the rules loaded so far.
func (ld *Loader) RuleSet() *RuleSet { return ld.rules }

// Diagnostics returns every item discarded or ignored so far.
func (ld *Loader) Diagnostics() []*LoadError {
	return append([]*LoadError(nil), ld.diags...)
}

func (ld *Loader) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return ld.Load(f)
}

func (ld *Loader) LoadBytes(b []byte) error {
	return ld.Load(bytes.NewReader(b))
}

// Load reads a rule document and merges its default Mappings group into the
// rule set. Only XML errors and a missing default group are returned.
func (ld *Loader) Load(r io.Reader) error {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return ErrNoDocument
	}

	var active *etree.Element
	for _, group := range root.SelectElements("Mappings") {
		if active == nil && boolAttr(group, "Default") {
			active = group
			continue
		}
		ld.rules.Alternates++
	}
	if active == nil {
		return ErrNoDefaultGroup
	}

	ld.loadGroup(active)
	return nil
}

func (ld *Loader) loadGroup(group *etree.Element) {
	for _, el := range group.ChildElements() {
		switch el.Tag {
		case "Mapping":
			m, err := ld.loadMapping(el)
			if err != nil {
				ld.discard("Mapping", el.SelectAttrValue("Name", ""), err)
				continue
			}
			if _, dup := ld.rules.Mappings[m.Name]; dup {
				ld.discard("Mapping", m.Name, ErrDuplicate)
				continue
			}
			ld.rules.Mappings[m.Name] = m
			ld.log.Debug("Loaded mapping", "mapping", m.Name, "scope", m.Scope, "flags", m.Flags)

		case "DllImport":
			imp, err := ld.loadImport(el)
			if err != nil {
				ld.discard("DllImport", el.SelectAttrValue("Symbol", ""), err)
				continue
			}
			if ld.hasImport(imp.Symbol) {
				ld.discard("DllImport", imp.Symbol, ErrDuplicate)
				continue
			}
			ld.rules.Imports = append(ld.rules.Imports, imp)

		default:
			ld.ignore(el.Tag, group.Tag)
		}
	}
}

func (ld *Loader) hasImport(symbol string) bool {
	for _, imp := range ld.rules.Imports {
		if imp.Symbol == symbol {
			return true
		}
	}
	return false
}

func (ld *Loader) loadMapping(el *etree.Element) (*Mapping, error) {
	name := el.SelectAttrValue("Name", "")
	if name == "" {
		return nil, attrErr(ErrMissingAttr, "Name", "")
	}
	m := &Mapping{Name: name}

	scope := el.SelectAttrValue("Scope", "")
	var ok bool
	if m.Scope, ok = ParseScope(scope); !ok {
		return nil, attrErr(ErrInvalidAttr, "Scope", scope)
	}

	if m.Scope != ScopeCustom {
		m.Module = el.SelectAttrValue("Module", DefaultModule)
		if _, known := ld.modules[m.Module]; !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModule, m.Module)
		}
	}

	for _, f := range []struct {
		attr string
		flag Flag
	}{{"Critical", FlagCritical}, {"Deferred", FlagDeferred}, {"AllowFail", FlagAllowFail}} {
		on, err := optBoolAttr(el, f.attr)
		if err != nil {
			return nil, err
		}
		if on {
			m.Flags |= f.flag
		}
	}

	guard, err := versionGuard(el)
	if err != nil {
		return nil, err
	}
	m.Version = guard

	var text strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			text.WriteString(cd.Data)
		}
	}
	if m.Pattern, err = pattern.Parse(text.String()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPattern, err)
	}

	for _, tel := range el.SelectElements("Target") {
		t, err := ld.loadTarget(tel)
		if err != nil {
			ld.discard("Target", name, err)
			continue
		}
		m.Targets = append(m.Targets, t)
	}

	for _, cel := range el.SelectElements("Condition") {
		c, err := loadCondition(cel)
		if err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
		if c.Type == CondFixedString || c.Type == CondFixedStringIndirect {
			m.Flags |= FlagDeferred
		}
		m.Conditions = append(m.Conditions, c)
	}

	for _, child := range el.ChildElements() {
		if child.Tag != "Target" && child.Tag != "Condition" {
			ld.ignore(child.Tag, name)
		}
	}

	if len(m.Targets) == 0 {
		return nil, ErrNoTargets
	}
	return m, nil
}

func (ld *Loader) loadTarget(el *etree.Element) (Target, error) {
	var t Target
	t.Name = el.SelectAttrValue("Name", "")

	typ := el.SelectAttrValue("Type", "")
	var ok bool
	if t.Type, ok = parseActionType(typ); !ok {
		return t, attrErr(ErrInvalidAttr, "Type", typ)
	}

	off, err := intAttr(el, "Offset")
	if err != nil {
		return t, err
	}
	t.Offset = off

	if sym := el.SelectAttr("Symbol"); sym != nil {
		ref, ok := ld.resolveSlot(sym.Value)
		if !ok {
			return t, fmt.Errorf("%w: %s", ErrUnknownSlot, sym.Value)
		}
		t.Slot = ref
		t.SlotName = sym.Value
	}

	if next := el.SelectAttr("NextSymbol"); next != nil {
		if _, ok := ld.rules.Mappings[next.Value]; !ok {
			return t, fmt.Errorf("%w: %s", ErrUnknownMapping, next.Value)
		}
		t.NextSymbol = next.Value

		seek, err := intAttr(el, "NextSymbolSeekSize")
		if err != nil {
			return t, err
		}
		if seek <= 0 {
			return t, attrErr(ErrInvalidAttr, "NextSymbolSeekSize", strconv.FormatInt(seek, 10))
		}
		t.NextSymbolSeekSize = uint64(seek)
	}

	t.EngineCallback = el.SelectAttrValue("EngineCallback", "")

	if t.Name == "" {
		t.Name = t.SlotName
		if t.Name == "" {
			t.Name = "(Unnamed)"
		}
	}

	if t.Slot.IsZero() && t.NextSymbol == "" && t.EngineCallback == "" {
		return t, ErrNoActions
	}
	return t, nil
}

func loadCondition(el *etree.Element) (Condition, error) {
	var c Condition
	typ := el.SelectAttrValue("Type", "")
	var ok bool
	if c.Type, ok = parseConditionType(typ); !ok {
		return c, attrErr(ErrInvalidAttr, "Type", typ)
	}

	if el.SelectAttr("Offset") != nil {
		off, err := intAttr(el, "Offset")
		if err != nil {
			return c, err
		}
		c.Offset = off
	}

	val := el.SelectAttr("Value")
	if val == nil {
		return c, attrErr(ErrMissingAttr, "Value", "")
	}
	c.Value = val.Value
	return c, nil
}

func (ld *Loader) loadImport(el *etree.Element) (DllImport, error) {
	var imp DllImport
	sym := el.SelectAttr("Symbol")
	if sym == nil || sym.Value == "" {
		return imp, attrErr(ErrMissingAttr, "Symbol", "")
	}
	ref, ok := ld.resolveSlot(sym.Value)
	if !ok {
		return imp, fmt.Errorf("%w: %s", ErrUnknownSlot, sym.Value)
	}
	imp.Symbol = sym.Value
	imp.Slot = ref

	if imp.Module = el.SelectAttrValue("Module", ""); imp.Module == "" {
		return imp, attrErr(ErrMissingAttr, "Module", "")
	}
	if imp.Proc = el.SelectAttrValue("Proc", ""); imp.Proc == "" {
		return imp, attrErr(ErrMissingAttr, "Proc", "")
	}
	return imp, nil
}

func (ld *Loader) resolveSlot(name string) (slots.Ref, bool) {
	if ld.slots == nil {
		return slots.Ref{}, false
	}
	return ld.slots.ResolveSlot(name)
}

func (ld *Loader) discard(element, name string, err error) {
	le := &LoadError{Element: element, Name: name, Err: err}
	ld.diags = append(ld.diags, le)
	ld.log.Error("Discarded rule", "element", element, "name", name, "err", err)
}

func (ld *Loader) ignore(tag, parent string) {
	le := &LoadError{Element: tag, Name: parent, Err: ErrUnknownElement}
	ld.diags = append(ld.diags, le)
	ld.log.Warn("Ignoring unknown element", "element", tag, "in", parent)
}

func versionGuard(el *etree.Element) (VersionGuard, error) {
	below := el.SelectAttr("VersionBelow")
	atLeast := el.SelectAttr("VersionAtLeast")
	switch {
	case below != nil && atLeast != nil:
		return VersionGuard{}, fmt.Errorf("%w: VersionBelow and VersionAtLeast", ErrConflictingAttr)
	case below != nil:
		rev, err := intAttr(el, "VersionBelow")
		return VersionGuard{Kind: GuardBelow, Revision: int(rev)}, err
	case atLeast != nil:
		rev, err := intAttr(el, "VersionAtLeast")
		return VersionGuard{Kind: GuardAtLeast, Revision: int(rev)}, err
	}
	return VersionGuard{}, nil
}

// intAttr parses a required integer attribute. Any base prefix is accepted.
func intAttr(el *etree.Element, name string) (int64, error) {
	a := el.SelectAttr(name)
	if a == nil {
		return 0, attrErr(ErrMissingAttr, name, "")
	}
	v, err := strconv.ParseInt(strings.TrimSpace(a.Value), 0, 64)
	if err != nil {
		return 0, attrErr(ErrInvalidAttr, name, a.Value)
	}
	return v, nil
}

func optBoolAttr(el *etree.Element, name string) (bool, error) {
	a := el.SelectAttr(name)
	if a == nil {
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(a.Value))
	if err != nil {
		return false, attrErr(ErrInvalidAttr, name, a.Value)
	}
	return v, nil
}

func boolAttr(el *etree.Element, name string) bool {
	v, err := optBoolAttr(el, name)
	return err == nil && v
}
