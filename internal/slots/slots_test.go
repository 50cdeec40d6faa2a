package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableResolveAndSet(t *testing.T) {
	tbl := NewTable("GlobalStrings", "ecs::EntityWorld")

	r, ok := tbl.ResolveSlot("ecs::EntityWorld")
	require.True(t, ok)
	assert.Equal(t, KindNamed, r.Kind())
	assert.Equal(t, 1, r.Offset())

	_, ok = tbl.ResolveSlot("Unknown")
	assert.False(t, ok)
	_, ok = tbl.ResolveSlot("")
	assert.False(t, ok)

	require.NoError(t, tbl.Set(r, 0x140001000))
	v, ok := tbl.Get("ecs::EntityWorld")
	require.True(t, ok)
	assert.Equal(t, uint64(0x140001000), v)
	assert.True(t, tbl.Written(r))
	assert.Equal(t, "ecs::EntityWorld", tbl.Name(r))

	tbl.BeginPass()
	assert.False(t, tbl.Written(r))
	v, _ = tbl.Get("ecs::EntityWorld")
	assert.Equal(t, uint64(0x140001000), v, "values survive a new pass")

	assert.Equal(t, map[string]uint64{"ecs::EntityWorld": 0x140001000}, tbl.Values())
}

func TestAutoDeclare(t *testing.T) {
	tbl := NewTable()
	tbl.SetAutoDeclare(true)

	a, ok := tbl.ResolveSlot("B")
	require.True(t, ok)
	b, ok := tbl.ResolveSlot("A")
	require.True(t, ok)
	again, _ := tbl.ResolveSlot("B")

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{"A", "B"}, tbl.Names())
	assert.Equal(t, 2, tbl.Len())
}

func TestExplicitAddress(t *testing.T) {
	var dst uint64
	r := ExplicitAddress(&dst)
	assert.Equal(t, KindAddress, r.Kind())
	assert.Equal(t, -1, r.Offset())

	var nilTable *Table
	require.NoError(t, nilTable.Set(r, 42))
	assert.Equal(t, uint64(42), dst)

	assert.True(t, ExplicitAddress(nil).IsZero())
}

func TestSetInvalid(t *testing.T) {
	tbl := NewTable("A")
	assert.ErrorIs(t, tbl.Set(Ref{}, 1), ErrInvalidRef)
	assert.ErrorIs(t, tbl.Set(NamedOffset(3), 1), ErrInvalidRef)

	var nilTable *Table
	assert.ErrorIs(t, nilTable.Set(NamedOffset(0), 1), ErrNoTable)
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(name string) (Ref, bool) {
		return NamedOffset(len(name)), name != ""
	})
	ref, ok := r.ResolveSlot("abc")
	assert.True(t, ok)
	assert.Equal(t, 3, ref.Offset())
}
