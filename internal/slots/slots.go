// Package slots holds the output locations resolved addresses are written to.
//
// A Ref names a slot in one of two ways: an offset into a Table owned by the
// embedder, or an explicit address the embedder handed out directly. Both are
// written through the same Set call.
package slots

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidRef = errors.New("invalid slot reference")
	ErrNoTable    = errors.New("named slot written without a slot table")
)

type Kind uint8

const (
	KindNone Kind = iota
	KindNamed
	KindAddress
)

// Ref is a tagged slot reference. The zero Ref refers to nothing.
type Ref struct {
	kind   Kind
	offset int
	addr   *uint64
}

// NamedOffset refers to entry off of a Table.
func NamedOffset(off int) Ref { return Ref{kind: KindNamed, offset: off} }

// ExplicitAddress refers to storage owned by the caller.
func ExplicitAddress(p *uint64) Ref {
	if p == nil {
		return Ref{}
	}
	return Ref{kind: KindAddress, addr: p}
}

func (r Ref) Kind() Kind   { return r.kind }
func (r Ref) IsZero() bool { return r.kind == KindNone }

// Offset returns the table offset of a named ref, or -1.
func (r Ref) Offset() int {
	if r.kind != KindNamed {
		return -1
	}
	return r.offset
}

func (r Ref) String() string {
	switch r.kind {
	case KindNamed:
		return fmt.Sprintf("slot#%d", r.offset)
	case KindAddress:
		return fmt.Sprintf("slot@%p", r.addr)
	default:
		return "slot(none)"
	}
}

// Resolver maps a slot name from a rule document to a Ref.
type Resolver interface {
	ResolveSlot(name string) (Ref, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (Ref, bool)

func (f ResolverFunc) ResolveSlot(name string) (Ref, bool) { return f(name) }

// Table is a registry of named pointer-sized slots. It is not safe for
// concurrent use; readers must wait for the resolution pass to return.
type Table struct {
	names   []string
	index   map[string]int
	values  []uint64
	written []bool
	auto    bool
}

// NewTable returns a table with the given slots declared in order.
func NewTable(names ...string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, n := range names {
		t.Declare(n)
	}
	return t
}

// SetAutoDeclare makes ResolveSlot declare unknown names instead of
// rejecting them.
func (t *Table) SetAutoDeclare(on bool) { t.auto = on }

// Declare adds a slot, or returns the existing one.
func (t *Table) Declare(name string) Ref {
	if i, ok := t.index[name]; ok {
		return NamedOffset(i)
	}
	i := len(t.names)
	t.names = append(t.names, name)
	t.values = append(t.values, 0)
	t.written = append(t.written, false)
	t.index[name] = i
	return NamedOffset(i)
}

func (t *Table) ResolveSlot(name string) (Ref, bool) {
	if name == "" {
		return Ref{}, false
	}
	if i, ok := t.index[name]; ok {
		return NamedOffset(i), true
	}
	if t.auto {
		return t.Declare(name), true
	}
	return Ref{}, false
}

// Set writes v to the slot r refers to. Explicit addresses are written even
// on a nil table.
func (t *Table) Set(r Ref, v uint64) error {
	switch r.kind {
	case KindAddress:
		*r.addr = v
		return nil
	case KindNamed:
		if t == nil {
			return ErrNoTable
		}
		if r.offset < 0 || r.offset >= len(t.values) {
			return fmt.Errorf("%w: offset %d", ErrInvalidRef, r.offset)
		}
		t.values[r.offset] = v
		t.written[r.offset] = true
		return nil
	default:
		return ErrInvalidRef
	}
}

// Written reports whether a named slot was set since the last BeginPass.
func (t *Table) Written(r Ref) bool {
	if t == nil || r.kind != KindNamed || r.offset < 0 || r.offset >= len(t.written) {
		return false
	}
	return t.written[r.offset]
}

// BeginPass clears the per-pass write markers. Values are kept.
func (t *Table) BeginPass() {
	for i := range t.written {
		t.written[i] = false
	}
}

// Get returns the value of a named slot.
func (t *Table) Get(name string) (uint64, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.values[i], true
}

// Name returns the name a named ref was declared under.
func (t *Table) Name(r Ref) string {
	if r.kind != KindNamed || r.offset < 0 || r.offset >= len(t.names) {
		return ""
	}
	return t.names[r.offset]
}

// Names returns every declared slot name, sorted.
func (t *Table) Names() []string {
	out := append([]string(nil), t.names...)
	sort.Strings(out)
	return out
}

// Values returns a snapshot of every non-zero slot.
func (t *Table) Values() map[string]uint64 {
	out := make(map[string]uint64)
	for i, n := range t.names {
		if t.values[i] != 0 {
			out[n] = t.values[i]
		}
	}
	return out
}

func (t *Table) Len() int { return len(t.names) }
