package mapping

import (
	"errors"
	"fmt"
)

var (
	ErrNoDocument      = errors.New("rule document has no root element")
	ErrNoDefaultGroup  = errors.New("rule document has no default Mappings group")
	ErrMissingAttr     = errors.New("missing required attribute")
	ErrInvalidAttr     = errors.New("invalid attribute value")
	ErrUnknownModule   = errors.New("unknown module")
	ErrUnknownSlot     = errors.New("unknown output slot")
	ErrUnknownMapping  = errors.New("unknown chained mapping")
	ErrDuplicate       = errors.New("duplicate name")
	ErrNoTargets       = errors.New("mapping has no valid targets")
	ErrNoActions       = errors.New("target specifies no actions")
	ErrBadPattern      = errors.New("invalid pattern")
	ErrUnknownElement  = errors.New("unknown element")
	ErrConflictingAttr = errors.New("conflicting attributes")
)

// LoadError describes one item of a rule document that was discarded or
// ignored while loading. The rest of the document is still processed.
type LoadError struct {
	Element string // Mapping, Target, Condition, DllImport, ...
	Name    string // owning mapping name or import symbol, if known
	Err     error
}

func (e *LoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Element, e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func attrErr(sentinel error, attr, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", sentinel, attr)
	}
	return fmt.Errorf("%w: %s=%q", sentinel, attr, value)
}
