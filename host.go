package refsync

import (
	"slices"
	"sync"
)

// Reference is one library reference as reported by the host, in the
// order the host lists it.
type Reference struct {
	Name     string `json:"name" yaml:"name"`
	FullPath string `json:"path" yaml:"path"`
	IsBroken bool   `json:"broken,omitempty" yaml:"broken"`
}

// Project is a top-level source container owned by the host. The engine
// never mutates a project except through ProjectIDAssigner.
type Project interface {
	ID() string
	Name() string
	// FileName returns the path the project is saved under. It returns
	// ErrUnsavedProject (or any other error) when no stable path exists.
	FileName() (string, error)
	// References returns the project's references in priority order.
	References() []Reference
}

// ProjectIDAssigner is implemented by projects that accept an ID from
// the engine when the host has not assigned one yet.
type ProjectIDAssigner interface {
	AssignID(id string)
}

// HostProject is an in-memory Project. It is safe for concurrent use so
// a host can edit references between passes.
type HostProject struct {
	mu       sync.RWMutex
	id       string
	name     string
	fileName string
	refs     []Reference
}

// NewHostProject returns a project. An empty fileName marks the project
// as unsaved.
func NewHostProject(id, name, fileName string, refs ...Reference) *HostProject {
	return &HostProject{id: id, name: name, fileName: fileName, refs: slices.Clone(refs)}
}

func (p *HostProject) ID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

func (p *HostProject) Name() string { return p.name }

func (p *HostProject) FileName() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.fileName == "" {
		return "", ErrUnsavedProject
	}
	return p.fileName, nil
}

// References returns a copy of the reference list.
func (p *HostProject) References() []Reference {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.refs)
}

func (p *HostProject) AssignID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
}

// SetReferences replaces the reference list.
func (p *HostProject) SetReferences(refs ...Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = slices.Clone(refs)
}

// RemoveReference drops every reference with the given name.
func (p *HostProject) RemoveReference(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = slices.DeleteFunc(p.refs, func(r Reference) bool { return r.Name == name })
}

var (
	_ Project           = (*HostProject)(nil)
	_ ProjectIDAssigner = (*HostProject)(nil)
)
