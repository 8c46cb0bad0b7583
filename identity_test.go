package refsync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/refsync/internal/slogutil"
)

func TestLibraryIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  Reference
		want string
	}{
		{"plain", Reference{Name: "Excel", FullPath: "/office/excel.olb"}, "Excel;/office/excel.olb"},
		{"cleaned", Reference{Name: "Excel", FullPath: "/office/../office/./excel.olb"}, "Excel;/office/excel.olb"},
		{"no path", Reference{Name: "VBA"}, "VBA;"},
		{"same name different file", Reference{Name: "Excel", FullPath: "/other/excel.olb"}, "Excel;/other/excel.olb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LibraryIdentity(tt.ref))
		})
	}
}

func TestLibraryIdentity_IgnoresBrokenFlag(t *testing.T) {
	t.Parallel()
	ref := alphaRef()
	broken := ref
	broken.IsBroken = true
	assert.Equal(t, LibraryIdentity(ref), LibraryIdentity(broken))
}

// failingProject reports a FileName error other than ErrUnsavedProject.
type failingProject struct {
	*HostProject
}

func (failingProject) FileName() (string, error) {
	return "", errors.New("storage offline")
}

func TestIdentityResolver(t *testing.T) {
	t.Parallel()

	saved := NewHostProject("H1", "Helpers", "/work/helpers.xlam")
	unsaved := NewHostProject("H2", "Scratch", "")
	offline := failingProject{NewHostProject("H3", "Remote", "/net/remote.xlam")}
	r := &identityResolver{projects: []Project{saved, unsaved, offline}, logger: slogutil.NewDiscardLogger()}

	assert.Equal(t, "H1", r.resolve(Reference{Name: "Helpers", FullPath: "/work/helpers.xlam"}))
	assert.Equal(t, "H1", r.resolve(Reference{Name: "Helpers", FullPath: "/work/addins/../helpers.xlam"}), "paths compare cleaned")
	assert.Equal(t, "Helpers;/elsewhere/helpers.xlam", r.resolve(Reference{Name: "Helpers", FullPath: "/elsewhere/helpers.xlam"}))
	assert.Equal(t, "Scratch;/work/scratch.xlam", r.resolve(Reference{Name: "Scratch", FullPath: "/work/scratch.xlam"}))
	assert.Equal(t, "Remote;/net/remote.xlam", r.resolve(Reference{Name: "Remote", FullPath: "/net/remote.xlam"}))
}

// fixedProject has no ID and refuses assignment.
type fixedProject struct{ name string }

func (p fixedProject) ID() string                { return "" }
func (p fixedProject) Name() string              { return p.name }
func (p fixedProject) FileName() (string, error) { return "", ErrUnsavedProject }
func (p fixedProject) References() []Reference   { return nil }

func TestProjectID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "P1", projectID(NewHostProject("P1", "Book1", "")))

	p := NewHostProject("", "Book1", "")
	id := projectID(p)
	require.NotEmpty(t, id)
	assert.Equal(t, id, p.ID())
	assert.Equal(t, id, projectID(p), "assigned once")

	assert.Equal(t, "Book2", projectID(fixedProject{name: "Book2"}))
}

func TestHostProject(t *testing.T) {
	t.Parallel()

	p := NewHostProject("P1", "Book1", "", alphaRef(), betaRef(), alphaRef())
	_, err := p.FileName()
	assert.ErrorIs(t, err, ErrUnsavedProject)

	refs := p.References()
	refs[0].Name = "Mutated"
	assert.Equal(t, "Alpha", p.References()[0].Name, "References returns a copy")

	p.RemoveReference("Alpha")
	assert.Equal(t, []Reference{betaRef()}, p.References())

	p.SetReferences(gammaRef())
	assert.Equal(t, []Reference{gammaRef()}, p.References())
}
