package mapping

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symmap/internal/slots"
)

func newTestLoader() (*Loader, *slots.Table) {
	tbl := slots.NewTable("GlobalStrings", "ResetFunc", "StatsLookup", "CreateFileW", "CloseHandle")
	return NewLoader(tbl, WithModules(DefaultModule)), tbl
}

func loadTestdata(t *testing.T) (*Loader, *slots.Table) {
	t.Helper()
	ld, tbl := newTestLoader()
	require.NoError(t, ld.LoadFile("testdata/rules.xml"))
	return ld, tbl
}

func TestLoadMappings(t *testing.T) {
	ld, tbl := loadTestdata(t)
	rs := ld.RuleSet()

	assert.Equal(t, []string{"EntityWorldCtor", "GlobalStringTable", "Later", "ResetSubroutine", "StatsLookup"}, rs.Names())
	assert.Equal(t, 1, rs.Alternates)

	gst, ok := rs.Get("GlobalStringTable")
	require.True(t, ok)
	assert.Equal(t, ScopeBinary, gst.Scope)
	assert.Equal(t, "Main", gst.Module)
	assert.True(t, gst.Critical())
	assert.False(t, gst.Deferred())
	assert.Equal(t, "48 8B 05 ?? ?? ?? ?? 48 85 C0", gst.Pattern.String(), "first definition wins")
	require.Len(t, gst.Targets, 1)
	tgt := gst.Targets[0]
	assert.Equal(t, "Table", tgt.Name)
	assert.Equal(t, ActionIndirect, tgt.Type)
	ref, _ := tbl.ResolveSlot("GlobalStrings")
	assert.Equal(t, ref, tgt.Slot)

	reset := rs.Mappings["ResetSubroutine"]
	assert.Equal(t, ScopeCustom, reset.Scope)
	assert.Empty(t, reset.Module)
	assert.Equal(t, "ResetFunc", reset.Targets[0].Name, "target name defaults to its slot")
}

func TestLoadTargetsAndConditions(t *testing.T) {
	ld, _ := loadTestdata(t)
	m := ld.RuleSet().Mappings["EntityWorldCtor"]
	require.NotNil(t, m)

	assert.Equal(t, ScopeText, m.Scope)
	assert.Equal(t, DefaultModule, m.Module)
	assert.True(t, m.AllowFail())
	assert.Equal(t, VersionGuard{Kind: GuardAtLeast, Revision: 16}, m.Version)

	require.Len(t, m.Conditions, 1)
	assert.Equal(t, Condition{Type: CondString, Offset: -7, Value: "EntityWorld"}, m.Conditions[0])

	require.Len(t, m.Targets, 2)
	chain := m.Targets[0]
	assert.Equal(t, "(Unnamed)", chain.Name)
	assert.Equal(t, int64(6), chain.Offset)
	assert.Equal(t, "ResetSubroutine", chain.NextSymbol)
	assert.Equal(t, uint64(0x40), chain.NextSymbolSeekSize)
	assert.True(t, chain.Slot.IsZero())

	hook := m.Targets[1]
	assert.Equal(t, "Hook", hook.Name)
	assert.Equal(t, "RegisterWorld", hook.EngineCallback)
}

func TestFixedStringConditionForcesDeferred(t *testing.T) {
	ld, _ := loadTestdata(t)
	m := ld.RuleSet().Mappings["StatsLookup"]
	require.NotNil(t, m)
	assert.True(t, m.Deferred())
	assert.Equal(t, CondFixedStringIndirect, m.Conditions[0].Type)
}

func TestLoadImports(t *testing.T) {
	ld, tbl := loadTestdata(t)
	imps := ld.RuleSet().Imports
	require.Len(t, imps, 1)

	ref, _ := tbl.ResolveSlot("CreateFileW")
	assert.Equal(t, DllImport{Symbol: "CreateFileW", Slot: ref, Module: "kernel32.dll", Proc: "CreateFileW"}, imps[0])
}

func TestDiagnostics(t *testing.T) {
	ld, _ := loadTestdata(t)

	type key struct {
		element, name string
	}
	got := make(map[key]error)
	for _, d := range ld.Diagnostics() {
		got[key{d.Element, d.Name}] = d
	}

	tests := []struct {
		element, name string
		want          error
	}{
		{"Mapping", "GlobalStringTable", ErrDuplicate},
		{"Mapping", "MissingModule", ErrUnknownModule},
		{"Target", "NoTargets", ErrUnknownMapping},
		{"Mapping", "NoTargets", ErrNoTargets},
		{"Mapping", "BadCondition", ErrInvalidAttr},
		{"Mapping", "BadPattern", ErrBadPattern},
		{"Comment", "Later", ErrUnknownElement},
		{"DllImport", "CreateFileW", ErrDuplicate},
		{"DllImport", "NoSuchSlot", ErrUnknownSlot},
		{"DllImport", "CloseHandle", ErrMissingAttr},
		{"Patch", "Mappings", ErrUnknownElement},
	}
	for _, tt := range tests {
		err, ok := got[key{tt.element, tt.name}]
		if assert.True(t, ok, "no diagnostic for %s %q", tt.element, tt.name) {
			assert.ErrorIs(t, err, tt.want, "%s %q", tt.element, tt.name)
		}
	}

	var le *LoadError
	require.True(t, errors.As(got[key{"Mapping", "BadPattern"}], &le))
	assert.Contains(t, le.Error(), `Mapping "BadPattern"`)
}

func TestLoadIsIdempotent(t *testing.T) {
	raw, err := os.ReadFile("testdata/rules.xml")
	require.NoError(t, err)

	a, _ := newTestLoader()
	b, _ := newTestLoader()
	require.NoError(t, a.LoadBytes(raw))
	require.NoError(t, b.LoadBytes(raw))

	assert.Equal(t, a.RuleSet(), b.RuleSet())
	for _, name := range a.RuleSet().Names() {
		assert.Equal(t, name, a.RuleSet().Mappings[name].Name)
	}
}

func TestLoadDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no default group", `<Root><Mappings Default="false"/></Root>`, ErrNoDefaultGroup},
		{"no groups", `<Root/>`, ErrNoDefaultGroup},
		{"empty", ``, ErrNoDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ld, _ := newTestLoader()
			assert.ErrorIs(t, ld.Load(strings.NewReader(tt.doc)), tt.want)
		})
	}

	ld, _ := newTestLoader()
	assert.Error(t, ld.Load(strings.NewReader(`<Root><Mappings`)))
}

func TestMappingAttributeErrors(t *testing.T) {
	tests := []struct {
		name    string
		mapping string
		want    error
	}{
		{"no name", `<Mapping>90<Target Type="Absolute" Offset="0" Symbol="GlobalStrings"/></Mapping>`, ErrMissingAttr},
		{"bad scope", `<Mapping Name="M" Scope="Data">90<Target Type="Absolute" Offset="0" Symbol="GlobalStrings"/></Mapping>`, ErrInvalidAttr},
		{"bad flag", `<Mapping Name="M" Critical="yes">90<Target Type="Absolute" Offset="0" Symbol="GlobalStrings"/></Mapping>`, ErrInvalidAttr},
		{"conflicting guard", `<Mapping Name="M" VersionBelow="1" VersionAtLeast="2">90<Target Type="Absolute" Offset="0" Symbol="GlobalStrings"/></Mapping>`, ErrConflictingAttr},
		{"missing offset", `<Mapping Name="M">90<Target Type="Absolute" Symbol="GlobalStrings"/></Mapping>`, ErrNoTargets},
		{"no actions", `<Mapping Name="M">90<Target Type="Absolute" Offset="0"/></Mapping>`, ErrNoTargets},
		{"condition without value", `<Mapping Name="M">90<Condition Type="String"/><Target Type="Absolute" Offset="0" Symbol="GlobalStrings"/></Mapping>`, ErrMissingAttr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ld, _ := newTestLoader()
			require.NoError(t, ld.Load(strings.NewReader(`<Root><Mappings Default="true">`+tt.mapping+`</Mappings></Root>`)))
			assert.Empty(t, ld.RuleSet().Mappings)

			var matched bool
			for _, d := range ld.Diagnostics() {
				if errors.Is(d, tt.want) {
					matched = true
				}
			}
			assert.True(t, matched, "diagnostics %v do not contain %v", ld.Diagnostics(), tt.want)
		})
	}
}

func TestChainSeekSizeMustBePositive(t *testing.T) {
	ld, _ := newTestLoader()
	doc := `<Root><Mappings Default="true">
		<Mapping Name="Inner" Scope="Custom">C3<Target Type="Absolute" Offset="0" Symbol="ResetFunc"/></Mapping>
		<Mapping Name="Outer">
			E8 ?? ?? ?? ??
			<Target Type="Indirect" Offset="0" NextSymbol="Inner" NextSymbolSeekSize="0"/>
			<Target Type="Indirect" Offset="0" NextSymbol="Inner"/>
		</Mapping>
	</Mappings></Root>`
	require.NoError(t, ld.Load(strings.NewReader(doc)))
	_, ok := ld.RuleSet().Get("Outer")
	assert.False(t, ok)
	_, ok = ld.RuleSet().Get("Inner")
	assert.True(t, ok)
}

func TestNilResolverRejectsSlots(t *testing.T) {
	ld := NewLoader(nil, WithModules(DefaultModule))
	doc := `<Root><Mappings Default="true">
		<Mapping Name="M">90<Target Type="Absolute" Offset="0" Symbol="Anything"/></Mapping>
		<Mapping Name="N">90<Target Type="Absolute" Offset="0" EngineCallback="cb"/></Mapping>
	</Mappings></Root>`
	require.NoError(t, ld.Load(strings.NewReader(doc)))
	assert.Equal(t, []string{"N"}, ld.RuleSet().Names())
}

func TestVersionGuardAllows(t *testing.T) {
	below := VersionGuard{Kind: GuardBelow, Revision: 100}
	assert.False(t, below.Allows(150))
	assert.False(t, below.Allows(100))
	assert.True(t, below.Allows(99))

	atLeast := VersionGuard{Kind: GuardAtLeast, Revision: 100}
	assert.True(t, atLeast.Allows(100))
	assert.False(t, atLeast.Allows(99))

	assert.True(t, VersionGuard{}.Allows(0))
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "none", Flag(0).String())
	assert.Equal(t, "Critical|AllowFail", (FlagCritical | FlagAllowFail).String())
}
