package refsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inspect(t *testing.T, e *Engine) []InspectionResult {
	t.Helper()
	results, err := RunInspections(context.Background(), e.Query(), ObjectVariableNotSet{})
	require.NoError(t, err)
	return results
}

func newInspectionEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t, standardCollector())
	syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef()))
	return e
}

func TestObjectVariableNotSet_FlagsLibraryObjectType(t *testing.T) {
	e := newInspectionEngine(t)
	_, err := e.AddUserModule(context.Background(), rangeModule("P1"))
	require.NoError(t, err)

	results := inspect(t, e)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, CheckObjectVariableNotSet, r.Check)
	assert.Equal(t, "target", r.Name)
	assert.Equal(t, "Object variable 'target' is assigned without the 'Set' keyword.", r.Description)
	assert.Equal(t, Location{ProjectID: "P1", Module: "Module1", StartLine: 3, StartCol: 4, EndLine: 3, EndCol: 10}, r.Location)
}

func TestObjectVariableNotSet_SetAssignmentIsFine(t *testing.T) {
	e := newInspectionEngine(t)
	m := rangeModule("P1")
	m.References[1].IsSetAssignment = true
	_, err := e.AddUserModule(context.Background(), m)
	require.NoError(t, err)

	assert.Empty(t, inspect(t, e))
}

func TestObjectVariableNotSet_ValueTypesAreFine(t *testing.T) {
	e := newInspectionEngine(t)
	_, err := e.AddUserModule(context.Background(), UserModule{
		ProjectID: "P1",
		Name:      "Module1",
		Declarations: []UserDeclaration{
			{Name: "n", Kind: KindVariable, TypeName: "Long", Line: 1},
			{Name: "v", Kind: KindVariable, Line: 2},
		},
		References: []UserReference{
			{Name: "n", Line: 3, IsAssignment: true},
			{Name: "v", Line: 4, IsAssignment: true},
			{Name: "n", Line: 5},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, inspect(t, e))
}

func TestObjectVariableNotSet_ObjectDeclarations(t *testing.T) {
	e := newInspectionEngine(t)
	_, err := e.AddUserModule(context.Background(), UserModule{
		ProjectID: "P1",
		Name:      "Module1",
		Declarations: []UserDeclaration{
			{Name: "o", Kind: KindVariable, TypeName: "object", Line: 1},
			{Name: "w", Kind: KindVariable, TypeName: "Widget", IsObjectType: true, Line: 2},
		},
		References: []UserReference{
			{Name: "o", Line: 3, IsAssignment: true},
			{Name: "w", Line: 4, IsAssignment: true},
		},
	})
	require.NoError(t, err)

	results := inspect(t, e)
	require.Len(t, results, 2)
	assert.Equal(t, "o", results[0].Name)
	assert.Equal(t, "w", results[1].Name)
}

func TestObjectVariableNotSet_FailedLetCoercion(t *testing.T) {
	e := newInspectionEngine(t)
	_, err := e.AddUserModule(context.Background(), UserModule{
		ProjectID: "P1",
		Name:      "Module1",
		References: []UserReference{
			{Name: "mystery", Line: 2, IsAssignment: true, FailedLetCoercion: true},
			{Name: "readOnly", Line: 3, FailedLetCoercion: true},
		},
	})
	require.NoError(t, err)

	results := inspect(t, e)
	require.Len(t, results, 1)
	assert.Equal(t, "mystery", results[0].Name)
}

func TestObjectVariableNotSet_ReportsEachReferenceOnce(t *testing.T) {
	e := newInspectionEngine(t)
	m := rangeModule("P1")
	m.References[1].FailedLetCoercion = true
	_, err := e.AddUserModule(context.Background(), m)
	require.NoError(t, err)

	assert.Len(t, inspect(t, e), 1)
}

func TestObjectVariableNotSet_Suppressions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *UserModule)
	}{
		{"module", func(m *UserModule) { m.Ignores = []string{CheckObjectVariableNotSet} }},
		{"module all checks", func(m *UserModule) { m.Ignores = []string{AllChecks} }},
		{"member", func(m *UserModule) { m.Declarations[0].Ignores = []string{CheckObjectVariableNotSet} }},
		{"line", func(m *UserModule) { m.References[1].Ignores = []string{CheckObjectVariableNotSet} }},
		{"scope of unpositioned reference", func(m *UserModule) {
			m.References[1].Line = 0
			m.References[1].Ignores = []string{CheckObjectVariableNotSet}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newInspectionEngine(t)
			m := rangeModule("P1")
			tt.modify(&m)
			_, err := e.AddUserModule(context.Background(), m)
			require.NoError(t, err)

			assert.Empty(t, inspect(t, e))
		})
	}
}

func TestObjectVariableNotSet_OtherChecksDoNotSuppress(t *testing.T) {
	e := newInspectionEngine(t)
	m := rangeModule("P1")
	m.Ignores = []string{"UnusedVariable"}
	m.References[1].Ignores = []string{"ImplicitByRef"}
	_, err := e.AddUserModule(context.Background(), m)
	require.NoError(t, err)

	assert.Len(t, inspect(t, e), 1)
}

func TestObjectVariableNotSet_FollowsLibraryUnload(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	p1 := NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef())
	syncOK(t, e, p1)
	_, err := e.AddUserModule(context.Background(), rangeModule("P1"))
	require.NoError(t, err)
	require.Len(t, inspect(t, e), 1)

	// Without a library defining Range the type is unknown.
	p1.SetReferences()
	syncOK(t, e, p1)
	assert.Empty(t, inspect(t, e))
}

func TestRunInspections_Cancelled(t *testing.T) {
	e := newInspectionEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunInspections(ctx, e.Query(), ObjectVariableNotSet{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuppressionIndex(t *testing.T) {
	t.Parallel()
	scope := int64(7)
	key := ModuleKey{ProjectID: "P1", Module: "Module1"}
	idx := NewSuppressionIndex([]*Suppression{
		{ProjectID: "P1", Module: "Module1", Line: 12, Check: "A"},
		{ProjectID: "P1", Module: "Module1", ScopeDeclarationID: &scope, Check: "B"},
		{ProjectID: "P1", Module: "Other", Check: ""},
	})

	onLine := &IdentifierReference{ProjectID: "P1", Module: "Module1", StartLine: 12}
	assert.True(t, idx.IsIgnoringCheck(onLine, "A"))
	assert.False(t, idx.IsIgnoringCheck(onLine, "B"))

	inScope := &IdentifierReference{ProjectID: "P1", Module: "Module1", StartLine: 20, ScopeDeclarationID: &scope}
	assert.True(t, idx.IsIgnoringCheck(inScope, "B"))
	assert.False(t, idx.IsIgnoringCheck(inScope, "A"))

	assert.False(t, idx.IsModuleIgnoring(key, "A"))
	assert.True(t, idx.IsModuleIgnoring(ModuleKey{ProjectID: "P1", Module: "Other"}, "Anything"))
	assert.False(t, idx.IsModuleIgnoring(ModuleKey{ProjectID: "P2", Module: "Other"}, "Anything"))
}
