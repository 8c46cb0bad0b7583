package refsync

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
)

// LibraryIdentity derives the identity of a library from its reference
// handle as "name;path". Two handles naming the same file resolve to the
// same identity no matter which project reports them.
func LibraryIdentity(ref Reference) string {
	return ref.Name + ";" + cleanPath(ref.FullPath)
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// identityResolver maps reference handles to library identities for one
// pass. A reference that points at another open host project takes that
// project's ID.
type identityResolver struct {
	projects []Project
	logger   *slog.Logger
}

func (r *identityResolver) resolve(ref Reference) string {
	for _, p := range r.projects {
		if p.Name() != ref.Name {
			continue
		}
		fileName, err := p.FileName()
		if err != nil {
			r.logTransient(p, ref, err)
			continue
		}
		if cleanPath(fileName) == cleanPath(ref.FullPath) {
			return projectID(p)
		}
	}
	return LibraryIdentity(ref)
}

func (r *identityResolver) logTransient(p Project, ref Reference, err error) {
	se := newSyncError(CodeIdentityTransient, "", ref, "project file name unavailable", err)
	if errors.Is(err, ErrUnsavedProject) {
		r.logger.Debug("identity lookup skipped unsaved project", "project", p.Name(), "reference", ref.Name, "error", se)
		return
	}
	r.logger.Warn("identity lookup failed", "project", p.Name(), "reference", ref.Name, "error", se)
}

// projectID returns p's ID, assigning a fresh one first when p has none
// and accepts assignment. Projects without an ID that refuse assignment
// are keyed by name.
func projectID(p Project) string {
	if id := p.ID(); id != "" {
		return id
	}
	if a, ok := p.(ProjectIDAssigner); ok {
		a.AssignID(uuid.NewString())
		if id := p.ID(); id != "" {
			return id
		}
	}
	return p.Name()
}
