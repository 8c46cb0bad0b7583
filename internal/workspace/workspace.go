// Package workspace reads a host workspace description: the projects, the
// libraries each references in priority order, and the parsed skeleton of
// each user module.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jward/refsync"
)

// Workspace is the root of a workspace file.
type Workspace struct {
	Projects []Project `yaml:"projects"`

	hosts []*refsync.HostProject
}

// Project describes one host project.
type Project struct {
	// ID is optional; projects without one get an ID on first sync.
	ID string `yaml:"id,omitempty"`
	// Name is the project name other projects reference it by.
	Name string `yaml:"name"`
	// File is the saved path. Empty marks the project unsaved.
	File string `yaml:"file,omitempty"`
	// References are listed in priority order.
	References []refsync.Reference  `yaml:"references"`
	Modules    []refsync.UserModule `yaml:"modules,omitempty"`
}

// Load reads and validates a workspace file. Relative reference paths are
// resolved against the file's directory.
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace file: %w", err)
	}
	ws, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ws, nil
}

// Parse decodes a workspace, rejecting unknown fields. basePath anchors
// relative reference paths; empty leaves them untouched.
func Parse(data []byte, basePath string) (*Workspace, error) {
	var ws Workspace
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&ws); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range ws.Projects {
		for j, ref := range ws.Projects[i].References {
			if ref.FullPath != "" && !filepath.IsAbs(ref.FullPath) && basePath != "" {
				ws.Projects[i].References[j].FullPath = filepath.Join(basePath, ref.FullPath)
			}
		}
	}

	if err := validate(&ws); err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	return &ws, nil
}

func validate(ws *Workspace) error {
	ids := make(map[string]bool)
	for i, p := range ws.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}
		if p.ID != "" {
			if ids[p.ID] {
				return fmt.Errorf("project %q: duplicate id %q", p.Name, p.ID)
			}
			ids[p.ID] = true
		}
		for j, ref := range p.References {
			if ref.Name == "" {
				return fmt.Errorf("project %q: reference %d: name is required", p.Name, j+1)
			}
		}
		modules := make(map[string]bool)
		for _, m := range p.Modules {
			if m.Name == "" {
				return fmt.Errorf("project %q: module name is required", p.Name)
			}
			if modules[m.Name] {
				return fmt.Errorf("project %q: duplicate module %q", p.Name, m.Name)
			}
			modules[m.Name] = true
		}
	}
	return nil
}

// HostProjects returns the workspace's projects as engine projects. The
// same instances are returned on every call, so IDs assigned during a
// pass stick.
func (ws *Workspace) HostProjects() []*refsync.HostProject {
	if ws.hosts == nil {
		ws.hosts = make([]*refsync.HostProject, len(ws.Projects))
		for i, p := range ws.Projects {
			ws.hosts[i] = refsync.NewHostProject(p.ID, p.Name, p.File, p.References...)
		}
	}
	return ws.hosts
}

// EngineProjects returns HostProjects as the Project interface.
func (ws *Workspace) EngineProjects() []refsync.Project {
	hosts := ws.HostProjects()
	out := make([]refsync.Project, len(hosts))
	for i, h := range hosts {
		out[i] = h
	}
	return out
}

// UserModules returns every module stamped with its project's current ID.
// Call it after a pass so unsaved projects have an ID.
func (ws *Workspace) UserModules() []refsync.UserModule {
	hosts := ws.HostProjects()
	var out []refsync.UserModule
	for i, p := range ws.Projects {
		id := hosts[i].ID()
		if id == "" {
			id = p.Name
		}
		for _, m := range p.Modules {
			m.ProjectID = id
			out = append(out, m)
		}
	}
	return out
}
