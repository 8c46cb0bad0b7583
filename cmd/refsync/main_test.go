package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jward/refsync"
	"github.com/jward/refsync/internal/config"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "sub", "deep")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.EqualError(t, validateFormat("yaml"), `invalid format "yaml": must be json or text`)
}

// The remaining tests touch package-level flag state and run serially.

func TestResolveDBPath(t *testing.T) {
	defer resetFlags()
	resetFlags()

	assert.Equal(t, filepath.Join("/repo", ".refsync", "refsync.db"), resolveDBPath("/repo"))

	settings = &config.Config{DBPath: "data/graph.db"}
	assert.Equal(t, filepath.Join("/repo", "data", "graph.db"), resolveDBPath("/repo"))

	flagDB = "/abs/override.db"
	assert.Equal(t, "/abs/override.db", resolveDBPath("/repo"))
}

func TestBuildSortAndFilter(t *testing.T) {
	defer resetFlags()
	resetFlags()

	assert.Equal(t, refsync.Sort{Field: refsync.SortByName, Order: refsync.Asc}, buildSort())
	flagSort, flagOrder = "ref_count", "desc"
	assert.Equal(t, refsync.Sort{Field: refsync.SortByRefCount, Order: refsync.Desc}, buildSort())
	flagSort = "bogus"
	assert.Equal(t, refsync.SortByName, buildSort().Field)

	assert.Equal(t, refsync.DeclarationFilter{}, buildFilter())
	flagKind, flagLibrary, flagParent, flagGlobal = "class", "Excel;/x.toml", 7, true
	f := buildFilter()
	assert.Equal(t, []string{"class"}, f.Kinds)
	assert.Equal(t, "Excel;/x.toml", *f.Library)
	assert.Equal(t, int64(7), *f.ParentID)
	assert.Nil(t, f.ProjectID)
	assert.True(t, f.GlobalOnly)
	assert.False(t, f.UserOnly)

	assert.Equal(t, refsync.Pagination{Limit: 50}, buildPagination())
}

func TestResultLen(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, resultLen(nil))
	assert.Equal(t, 2, resultLen([]CLIDeclaration{{}, {}}))
	assert.Equal(t, 1, resultLen(CLISyncResult{}))
}
