// Package mapping defines the rule model and loads it from XML rule documents.
package mapping

import (
	"fmt"
	"sort"

	"symmap/internal/pattern"
	"symmap/internal/slots"
)

// DefaultModule is the module a non-custom mapping scans when the document
// names none.
const DefaultModule = "Main"

// Scope selects the memory range a mapping scans.
type Scope int

const (
	ScopeText   Scope = iota // code section of the module
	ScopeBinary              // whole module image
	ScopeCustom              // caller-supplied range, used by chained mappings
)

func (s Scope) String() string {
	switch s {
	case ScopeText:
		return "Text"
	case ScopeBinary:
		return "Binary"
	case ScopeCustom:
		return "Custom"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope accepts the document spelling of a scope.
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "", "Text":
		return ScopeText, true
	case "Binary":
		return ScopeBinary, true
	case "Custom":
		return ScopeCustom, true
	}
	return 0, false
}

type Flag uint8

const (
	FlagCritical Flag = 1 << iota
	FlagDeferred
	FlagAllowFail
)

func (f Flag) Has(x Flag) bool { return f&x != 0 }

func (f Flag) String() string {
	var s string
	for _, x := range []struct {
		f    Flag
		name string
	}{{FlagCritical, "Critical"}, {FlagDeferred, "Deferred"}, {FlagAllowFail, "AllowFail"}} {
		if f.Has(x.f) {
			if s != "" {
				s += "|"
			}
			s += x.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

type ConditionType int

const (
	// CondString: the instruction at the offset references a C string.
	CondString ConditionType = iota
	// CondFixedString: it references an interned string handle.
	CondFixedString
	// CondFixedStringIndirect: it references a pointer to a handle.
	CondFixedStringIndirect
)

func (c ConditionType) String() string {
	switch c {
	case CondString:
		return "String"
	case CondFixedString:
		return "FixedString"
	case CondFixedStringIndirect:
		return "FixedStringIndirect"
	default:
		return fmt.Sprintf("ConditionType(%d)", int(c))
	}
}

func parseConditionType(s string) (ConditionType, bool) {
	switch s {
	case "String":
		return CondString, true
	case "FixedString":
		return CondFixedString, true
	case "FixedStringIndirect":
		return CondFixedStringIndirect, true
	}
	return 0, false
}

type ActionType int

const (
	ActionAbsolute ActionType = iota // match + offset
	ActionIndirect                   // reference decoded at match + offset
)

func (a ActionType) String() string {
	switch a {
	case ActionAbsolute:
		return "Absolute"
	case ActionIndirect:
		return "Indirect"
	default:
		return fmt.Sprintf("ActionType(%d)", int(a))
	}
}

func parseActionType(s string) (ActionType, bool) {
	switch s {
	case "Absolute":
		return ActionAbsolute, true
	case "Indirect":
		return ActionIndirect, true
	}
	return 0, false
}

type GuardKind int

const (
	GuardNone GuardKind = iota
	GuardBelow
	GuardAtLeast
)

// VersionGuard limits a mapping to a range of binary revisions.
type VersionGuard struct {
	Kind     GuardKind
	Revision int
}

// Allows reports whether a mapping with this guard runs at revision rev.
func (g VersionGuard) Allows(rev int) bool {
	switch g.Kind {
	case GuardBelow:
		return rev < g.Revision
	case GuardAtLeast:
		return rev >= g.Revision
	default:
		return true
	}
}

func (g VersionGuard) String() string {
	switch g.Kind {
	case GuardBelow:
		return fmt.Sprintf("below %d", g.Revision)
	case GuardAtLeast:
		return fmt.Sprintf("at least %d", g.Revision)
	default:
		return "any"
	}
}

type Condition struct {
	Type   ConditionType
	Offset int64
	Value  string
}

// Target is one action run on a matched occurrence. At least one of Slot,
// NextSymbol or EngineCallback is set.
type Target struct {
	Name   string
	Type   ActionType
	Offset int64

	Slot     slots.Ref
	SlotName string

	NextSymbol         string
	NextSymbolSeekSize uint64

	EngineCallback string
}

type Mapping struct {
	Name       string
	Scope      Scope
	Module     string // empty for ScopeCustom
	Pattern    *pattern.Pattern
	Conditions []Condition
	Targets    []Target
	Flags      Flag
	Version    VersionGuard
}

func (m *Mapping) Critical() bool  { return m.Flags.Has(FlagCritical) }
func (m *Mapping) Deferred() bool  { return m.Flags.Has(FlagDeferred) }
func (m *Mapping) AllowFail() bool { return m.Flags.Has(FlagAllowFail) }

// DllImport resolves an exported procedure of an already loaded module.
type DllImport struct {
	Symbol string
	Slot   slots.Ref
	Module string
	Proc   string
}

// RuleSet is the loaded rule model. It is read-only once loading finishes.
type RuleSet struct {
	Mappings map[string]*Mapping
	Imports  []DllImport

	// Alternates counts Mappings groups that were checked but not activated.
	Alternates int
}

func NewRuleSet() *RuleSet {
	return &RuleSet{Mappings: make(map[string]*Mapping)}
}

// Get returns a mapping by name.
func (rs *RuleSet) Get(name string) (*Mapping, bool) {
	m, ok := rs.Mappings[name]
	return m, ok
}

// Names returns mapping names in sorted order.
func (rs *RuleSet) Names() []string {
	names := make([]string, 0, len(rs.Mappings))
	for n := range rs.Mappings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
