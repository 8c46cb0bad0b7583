package refsync

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCollector serves canned declarations by reference name and counts
// how often each library is collected.
type fakeCollector struct {
	mu     sync.Mutex
	libs   map[string][]Declaration
	fail   map[string]error
	panics map[string]bool
	calls  map[string]int
	// gate, when set, is received from before every collection.
	gate chan struct{}
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		libs:   make(map[string][]Declaration),
		fail:   make(map[string]error),
		panics: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (c *fakeCollector) with(name string, decls ...Declaration) *fakeCollector {
	c.libs[name] = decls
	return c
}

func (c *fakeCollector) Collect(ctx context.Context, ref Reference) ([]Declaration, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.calls[ref.Name]++
	decls, ok := c.libs[ref.Name]
	err := c.fail[ref.Name]
	boom := c.panics[ref.Name]
	c.mu.Unlock()

	switch {
	case boom:
		panic("collector exploded on " + ref.Name)
	case err != nil:
		return nil, err
	case !ok:
		return nil, fmt.Errorf("library %s not found", ref.Name)
	}
	return decls, nil
}

func (c *fakeCollector) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Canned libraries. Alpha and Beta both export a Range class so priority
// decides which one a project sees.
var (
	alphaDecls = []Declaration{
		{Name: "Range", Kind: KindClass, IsObjectType: true, IsGlobal: true, Members: []Declaration{
			{Name: "Value", Kind: KindProperty, TypeName: "Variant"},
		}},
		{Name: "xlUp", Kind: KindConstant, TypeName: "Long", IsGlobal: true},
	}
	betaDecls = []Declaration{
		{Name: "Range", Kind: KindClass, IsObjectType: true, IsGlobal: true},
		{Name: "Recordset", Kind: KindClass, IsObjectType: true, IsGlobal: true},
	}
	gammaDecls = []Declaration{
		{Name: "Connect", Kind: KindFunction, TypeName: "Boolean", IsGlobal: true},
	}
)

func standardCollector() *fakeCollector {
	return newFakeCollector().
		with("Alpha", alphaDecls...).
		with("Beta", betaDecls...).
		with("Gamma", gammaDecls...)
}

func alphaRef() Reference { return Reference{Name: "Alpha", FullPath: "/libs/alpha.tlb"} }
func betaRef() Reference  { return Reference{Name: "Beta", FullPath: "/libs/beta.tlb"} }
func gammaRef() Reference { return Reference{Name: "Gamma", FullPath: "/libs/gamma.tlb"} }

func newTestEngine(t *testing.T, c Collector, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, c, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func syncOK(t *testing.T, e *Engine, projects ...Project) SyncResult {
	t.Helper()
	res, err := e.Synchronize(context.Background(), projects)
	require.NoError(t, err)
	return res
}

func loadedIdentities(t *testing.T, e *Engine) []string {
	t.Helper()
	libs, err := e.Query().Libraries()
	require.NoError(t, err)
	out := make([]string, 0, len(libs))
	for _, l := range libs {
		out = append(out, l.Identity)
	}
	return out
}

func priorityMapFor(t *testing.T, e *Engine, identity string) PriorityMap {
	t.Helper()
	for _, m := range e.ProjectReferences() {
		if m.Identity == identity {
			return m
		}
	}
	t.Fatalf("no priority map for %s", identity)
	return PriorityMap{}
}

func hasPriorityMap(e *Engine, identity string) bool {
	for _, m := range e.ProjectReferences() {
		if m.Identity == identity {
			return true
		}
	}
	return false
}

// rangeModule assigns to a Range variable without Set.
func rangeModule(projectID string) UserModule {
	return UserModule{
		ProjectID: projectID,
		Name:      "Module1",
		Declarations: []UserDeclaration{
			{Name: "DoWork", Kind: KindProcedure, Line: 1},
			{Name: "target", Kind: KindVariable, TypeName: "Range", Scope: "DoWork", Line: 2},
		},
		References: []UserReference{
			{Name: "Range", Scope: "DoWork", Line: 2, Col: 14},
			{Name: "target", Scope: "DoWork", Line: 3, Col: 4, IsAssignment: true},
		},
	}
}
