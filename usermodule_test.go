package refsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referencesIn(t *testing.T, e *Engine, key ModuleKey) map[string]*IdentifierReference {
	t.Helper()
	grouped, err := e.Query().IdentifierReferencesByModule()
	require.NoError(t, err)
	out := make(map[string]*IdentifierReference)
	for _, r := range grouped[key] {
		out[r.Name] = r
	}
	return out
}

func TestAddUserModule_BindsReferences(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef()))

	key, err := e.AddUserModule(context.Background(), rangeModule("P1"))
	require.NoError(t, err)
	assert.Equal(t, ModuleKey{ProjectID: "P1", Module: "Module1"}, key)

	mod, err := e.Query().ModuleDeclaration(key)
	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, KindModule, mod.Kind)
	assert.True(t, mod.IsUserDefined)

	refs := referencesIn(t, e, key)
	require.Len(t, refs, 2)

	rng := refs["Range"]
	require.NotNil(t, rng.DeclarationID)
	d, err := e.Query().Declaration(*rng.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, alphaID, d.ProjectID)
	assert.Equal(t, 2, rng.StartLine)
	assert.Equal(t, 14, rng.StartCol)
	assert.Equal(t, 19, rng.EndCol)

	target := refs["target"]
	require.NotNil(t, target.DeclarationID)
	d, err = e.Query().Declaration(*target.DeclarationID)
	require.NoError(t, err)
	assert.True(t, d.IsUserDefined)
	assert.Equal(t, "Range", d.TypeName)
	assert.True(t, target.IsAssignment)
}

func TestAddUserModule_LocalsShadowModuleLevel(t *testing.T) {
	e := newTestEngine(t, standardCollector())

	_, err := e.AddUserModule(context.Background(), UserModule{
		ProjectID: "P1",
		Name:      "Module1",
		Declarations: []UserDeclaration{
			{Name: "count", Kind: KindVariable, Line: 1},
			{Name: "First", Kind: KindProcedure, Line: 2},
			{Name: "count", Kind: KindVariable, Scope: "First", Line: 3},
			{Name: "Second", Kind: KindProcedure, Line: 6},
		},
		References: []UserReference{
			{Name: "count", Scope: "First", Line: 4},
			{Name: "count", Scope: "Second", Line: 7},
		},
	})
	require.NoError(t, err)

	grouped, err := e.Query().IdentifierReferencesByModule()
	require.NoError(t, err)
	refs := grouped[ModuleKey{ProjectID: "P1", Module: "Module1"}]
	require.Len(t, refs, 2)

	inFirst, err := e.Query().Declaration(*refs[0].DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, 3, inFirst.StartLine)

	inSecond, err := e.Query().Declaration(*refs[1].DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, 1, inSecond.StartLine)
}

func TestAddUserModule_BindsToOtherModuleGlobals(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()

	_, err := e.AddUserModule(ctx, UserModule{
		ProjectID:    "P1",
		Name:         "Shared",
		Declarations: []UserDeclaration{{Name: "AppName", Kind: KindConstant, IsGlobal: true, Line: 1}},
	})
	require.NoError(t, err)
	key, err := e.AddUserModule(ctx, UserModule{
		ProjectID:  "P1",
		Name:       "Main",
		References: []UserReference{{Name: "AppName", Line: 3}, {Name: "Shared", Line: 4}},
	})
	require.NoError(t, err)

	refs := referencesIn(t, e, key)
	require.NotNil(t, refs["AppName"].DeclarationID)
	require.NotNil(t, refs["Shared"].DeclarationID, "module names resolve as globals")

	// Other projects do not see P1's globals.
	other, err := e.AddUserModule(ctx, UserModule{
		ProjectID:  "P2",
		Name:       "Main",
		References: []UserReference{{Name: "AppName", Line: 1}},
	})
	require.NoError(t, err)
	assert.Nil(t, referencesIn(t, e, other)["AppName"].DeclarationID)
}

func TestAddUserModule_ReplacesPreviousContent(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()

	key, err := e.AddUserModule(ctx, rangeModule("P1"))
	require.NoError(t, err)
	_, err = e.AddUserModule(ctx, UserModule{
		ProjectID:    "P1",
		Name:         "Module1",
		Declarations: []UserDeclaration{{Name: "Only", Kind: KindVariable, Line: 1}},
		References:   []UserReference{{Name: "Only", Line: 2}},
	})
	require.NoError(t, err)

	refs := referencesIn(t, e, key)
	require.Len(t, refs, 1)
	assert.NotNil(t, refs["Only"].DeclarationID)

	decls, err := e.Query().DeclarationsNamed("target")
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestAddUserModule_RemovingModuleUnbindsDependents(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()

	shared, err := e.AddUserModule(ctx, UserModule{
		ProjectID:    "P1",
		Name:         "Shared",
		Declarations: []UserDeclaration{{Name: "AppName", Kind: KindConstant, IsGlobal: true, Line: 1}},
	})
	require.NoError(t, err)
	main, err := e.AddUserModule(ctx, UserModule{
		ProjectID:  "P1",
		Name:       "Main",
		References: []UserReference{{Name: "AppName", Line: 3}},
	})
	require.NoError(t, err)

	require.NoError(t, e.RemoveUserModule(shared))

	assert.Nil(t, referencesIn(t, e, main)["AppName"].DeclarationID)
	mod, err := e.Query().ModuleDeclaration(shared)
	require.NoError(t, err)
	assert.Nil(t, mod)
}

// connModules returns a module assigning conn without Set and the module
// declaring conn as a global Recordset.
func connModules() (user, decl UserModule) {
	user = UserModule{
		ProjectID:    "P1",
		Name:         "Module2",
		Declarations: []UserDeclaration{{Name: "Open", Kind: KindProcedure, Line: 1}},
		References:   []UserReference{{Name: "conn", Scope: "Open", Line: 2, Col: 5, IsAssignment: true}},
	}
	decl = UserModule{
		ProjectID:    "P1",
		Name:         "Module1",
		Declarations: []UserDeclaration{{Name: "conn", Kind: KindVariable, TypeName: "Recordset", IsGlobal: true, Line: 1}},
	}
	return user, decl
}

func TestAddUserModule_DependentStoredFirstIsRebound(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()
	syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", betaRef()))

	user, decl := connModules()
	// Stored twice in the same order, the way repeated workspace syncs do.
	for range 2 {
		userKey, err := e.AddUserModule(ctx, user)
		require.NoError(t, err)
		_, err = e.AddUserModule(ctx, decl)
		require.NoError(t, err)

		conn := referencesIn(t, e, userKey)["conn"]
		require.NotNil(t, conn.DeclarationID)
		d, err := e.Query().Declaration(*conn.DeclarationID)
		require.NoError(t, err)
		assert.Equal(t, "Module1", d.Module)

		unresolved, err := e.Query().UnresolvedReferences()
		require.NoError(t, err)
		assert.Empty(t, unresolved)
	}

	results := inspect(t, e)
	require.Len(t, results, 1)
	assert.Equal(t, "conn", results[0].Name)
	assert.Equal(t, "Module2", results[0].Location.Module)
}

func TestAddUserModule_ReplacingDeclaringModuleKeepsDependentsBound(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()

	user, decl := connModules()
	_, err := e.AddUserModule(ctx, decl)
	require.NoError(t, err)
	userKey, err := e.AddUserModule(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, referencesIn(t, e, userKey)["conn"].DeclarationID)

	_, err = e.AddUserModule(ctx, decl)
	require.NoError(t, err)

	assert.NotNil(t, referencesIn(t, e, userKey)["conn"].DeclarationID)
	unresolved, err := e.Query().UnresolvedReferences()
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestAddUserModule_UserGlobalShadowsLibraryGlobal(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()
	syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef()))

	main, err := e.AddUserModule(ctx, UserModule{
		ProjectID:  "P1",
		Name:       "Main",
		References: []UserReference{{Name: "Range", Line: 1}},
	})
	require.NoError(t, err)
	boundTo := func() *GraphDeclaration {
		ref := referencesIn(t, e, main)["Range"]
		require.NotNil(t, ref.DeclarationID)
		d, err := e.Query().Declaration(*ref.DeclarationID)
		require.NoError(t, err)
		return d
	}
	assert.Equal(t, alphaID, boundTo().ProjectID)

	shared, err := e.AddUserModule(ctx, UserModule{
		ProjectID:    "P1",
		Name:         "Shared",
		Declarations: []UserDeclaration{{Name: "Range", Kind: KindClass, IsGlobal: true, Line: 1}},
	})
	require.NoError(t, err)
	d := boundTo()
	assert.True(t, d.IsUserDefined)
	assert.Equal(t, "Shared", d.Module)

	require.NoError(t, e.RemoveUserModule(shared))
	assert.Equal(t, alphaID, boundTo().ProjectID)
}

func TestAddUserModule_Validation(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	ctx := context.Background()

	_, err := e.AddUserModule(ctx, UserModule{Name: "NoProject"})
	require.Error(t, err)

	_, err = e.AddUserModule(ctx, UserModule{
		ProjectID:    "P1",
		Name:         "Module1",
		Declarations: []UserDeclaration{{Name: "x", Scope: "Nowhere"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")

	_, err = e.AddUserModule(ctx, UserModule{
		ProjectID:  "P1",
		Name:       "Module1",
		References: []UserReference{{Name: "x", Scope: "Nowhere"}},
	})
	require.Error(t, err)

	mod, err := e.Query().ModuleDeclaration(ModuleKey{ProjectID: "P1", Module: "Module1"})
	require.NoError(t, err)
	assert.Nil(t, mod, "a rejected module leaves nothing behind")
}

func TestAddUserModule_StoresSuppressions(t *testing.T) {
	e := newTestEngine(t, standardCollector())

	m := rangeModule("P1")
	m.Ignores = []string{"UnusedVariable"}
	m.Declarations[0].Ignores = []string{AllChecks}
	m.References[1].Ignores = []string{CheckObjectVariableNotSet}
	key, err := e.AddUserModule(context.Background(), m)
	require.NoError(t, err)

	idx, err := e.Query().Suppressions()
	require.NoError(t, err)
	assert.True(t, idx.IsModuleIgnoring(key, "UnusedVariable"))
	assert.False(t, idx.IsModuleIgnoring(key, CheckObjectVariableNotSet))

	refs := referencesIn(t, e, key)
	assert.True(t, idx.IsIgnoringCheck(refs["target"], CheckObjectVariableNotSet))
	assert.True(t, idx.IsIgnoringCheck(refs["Range"], "AnythingAtAll"), "member-level ignore covers every check")
}
