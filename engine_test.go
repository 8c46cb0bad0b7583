package refsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/refsync/internal/store"
)

func TestNew_CreatesStore(t *testing.T) {
	e := newTestEngine(t, standardCollector())

	require.NotNil(t, e.Store())
	libs, err := e.Query().Libraries()
	require.NoError(t, err)
	assert.Empty(t, libs)
	assert.Nil(t, e.LastSync())
	assert.Empty(t, e.ProjectReferences())
}

func TestNew_NilCollector(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	require.Error(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite", standardCollector())
	require.Error(t, err)
}

func TestNew_DefaultWorkers(t *testing.T) {
	e := newTestEngine(t, standardCollector(), WithWorkers(0))
	assert.GreaterOrEqual(t, e.workers, 1)
	assert.True(t, e.parallel)

	e = newTestEngine(t, standardCollector(), WithWorkers(3), WithParallel(false))
	assert.Equal(t, 3, e.workers)
	assert.False(t, e.parallel)
}

func TestClose_RejectsFurtherWork(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, standardCollector())
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "second Close is a no-op")

	ctx := context.Background()
	_, err = e.Synchronize(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.AddUserModule(ctx, rangeModule("P1"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.RemoveUserModule(ModuleKey{ProjectID: "P1", Module: "Module1"}), ErrClosed)
	_, err = e.ResolveGlobal("P1", "Range")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_RestoresPriorityMaps(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	c := standardCollector()
	p1 := NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef(), betaRef())

	e, err := New(dbPath, c)
	require.NoError(t, err)
	_, err = e.Synchronize(context.Background(), []Project{p1})
	require.NoError(t, err)
	before := e.ProjectReferences()
	require.NoError(t, e.Close())

	e, err = New(dbPath, c)
	require.NoError(t, err)
	defer e.Close()

	after := e.ProjectReferences()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Identity, after[i].Identity)
		assert.Equal(t, before[i].Priorities, after[i].Priorities)
		assert.True(t, after[i].IsLoaded)
		assert.Equal(t, before[i].Reference, after[i].Reference)
	}

	res, err := e.Synchronize(context.Background(), []Project{p1})
	require.NoError(t, err)
	assert.False(t, res.AnyLoaded)
	assert.Equal(t, 1, c.callCount("Alpha"))
	assert.Equal(t, 1, c.callCount("Beta"))
}

func TestNew_PurgesOrphanedLibraries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	batch := store.NewLibraryBatch(s, &store.Library{Identity: "Orphan;/libs/orphan.tlb", Name: "Orphan", Path: "/libs/orphan.tlb", LoadedAt: time.Now()})
	_, err = batch.InsertDeclaration(&store.Declaration{Module: "Orphan", Name: "Thing", Kind: KindClass, IsGlobal: true})
	require.NoError(t, err)
	require.NoError(t, s.CommitBatch(batch))
	require.NoError(t, s.Close())

	e, err := New(dbPath, standardCollector())
	require.NoError(t, err)
	defer e.Close()

	assert.Empty(t, loadedIdentities(t, e))
	decls, err := e.Query().DeclarationsNamed("Thing")
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestNew_RestoresUnloadedMapAsNotLoaded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.SavePriorities([]store.PriorityEntry{{Identity: "Alpha;/libs/alpha.tlb", ProjectID: "P1", Priority: 1}}))
	require.NoError(t, s.Close())

	c := standardCollector()
	e, err := New(dbPath, c)
	require.NoError(t, err)
	defer e.Close()

	m := priorityMapFor(t, e, "Alpha;/libs/alpha.tlb")
	assert.False(t, m.IsLoaded)
	assert.Equal(t, Reference{Name: "Alpha", FullPath: "/libs/alpha.tlb"}, m.Reference)

	res := syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef()))
	assert.Equal(t, []string{"Alpha;/libs/alpha.tlb"}, res.Loaded)
	assert.Equal(t, 1, c.callCount("Alpha"))
}

func TestEngine_ResolveGlobalUsesPriority(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	syncOK(t, e,
		NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef(), betaRef()),
		NewHostProject("P2", "Book2", "/work/book2.xlsm", betaRef(), alphaRef()),
	)

	lib := func(d *GraphDeclaration) string {
		require.NotNil(t, d)
		require.NotNil(t, d.LibraryID)
		return d.ProjectID
	}

	d, err := e.ResolveGlobal("P1", "Range")
	require.NoError(t, err)
	assert.Equal(t, "Alpha;/libs/alpha.tlb", lib(d))

	d, err = e.ResolveGlobal("P2", "Range")
	require.NoError(t, err)
	assert.Equal(t, "Beta;/libs/beta.tlb", lib(d))

	d, err = e.ResolveGlobal("P3", "Range")
	require.NoError(t, err)
	assert.Nil(t, d, "unreferenced libraries are invisible")

	d, err = e.ResolveGlobal("P1", "Value")
	require.NoError(t, err)
	assert.Nil(t, d, "members are not globals")
}

func TestEngine_ResolveGlobalPrefersUserDeclarations(t *testing.T) {
	e := newTestEngine(t, standardCollector())
	syncOK(t, e, NewHostProject("P1", "Book1", "/work/book1.xlsm", alphaRef()))

	_, err := e.AddUserModule(context.Background(), UserModule{
		ProjectID: "P1",
		Name:      "Globals",
		Declarations: []UserDeclaration{
			{Name: "xlUp", Kind: KindConstant, IsGlobal: true, Line: 1},
		},
	})
	require.NoError(t, err)

	d, err := e.ResolveGlobal("P1", "xlUp")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.IsUserDefined)
	assert.Equal(t, "Globals", d.Module)
}
