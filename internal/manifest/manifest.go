// Package manifest collects library declarations from TOML manifests.
//
// A manifest lists the declarations a library exposes:
//
//	version = 1
//	name = "Excel"
//
//	[[declaration]]
//	name = "Range"
//	kind = "class"
//	object = true
//	global = true
//
//	  [[declaration.member]]
//	  name = "Value"
//	  kind = "property"
//	  type = "Variant"
package manifest

import (
	"context"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/jward/refsync"
)

// Version is the manifest schema version this package reads.
const Version = 1

// File represents the root structure of a manifest.
type File struct {
	Version      int                   `toml:"version"`
	Name         string                `toml:"name"`
	Declarations []refsync.Declaration `toml:"declaration"`
}

var validKinds = map[string]bool{
	refsync.KindModule:     true,
	refsync.KindClass:      true,
	refsync.KindEnum:       true,
	refsync.KindEnumMember: true,
	refsync.KindUserType:   true,
	refsync.KindFunction:   true,
	refsync.KindProcedure:  true,
	refsync.KindProperty:   true,
	refsync.KindVariable:   true,
	refsync.KindConstant:   true,
	refsync.KindParameter:  true,
	refsync.KindEvent:      true,
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("unsupported manifest version %d", f.Version)
	}
	if err := validate(f.Declarations, ""); err != nil {
		return nil, err
	}
	return &f, nil
}

func validate(decls []refsync.Declaration, parent string) error {
	for _, d := range decls {
		if d.Name == "" {
			return fmt.Errorf("declaration without a name under %q", parent)
		}
		if d.Kind != "" && !validKinds[d.Kind] {
			return fmt.Errorf("declaration %q: unknown kind %q", d.Name, d.Kind)
		}
		if err := validate(d.Members, parent+"."+d.Name); err != nil {
			return err
		}
	}
	return nil
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Marshal encodes f as TOML.
func Marshal(f *File) ([]byte, error) {
	return toml.Marshal(f)
}

// Collector loads the manifest a reference's FullPath points at.
type Collector struct{}

var _ refsync.Collector = Collector{}

func (Collector) Collect(ctx context.Context, ref refsync.Reference) ([]refsync.Declaration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := ParseFile(ref.FullPath)
	if err != nil {
		return nil, err
	}
	if f.Name != "" && !strings.EqualFold(f.Name, ref.Name) {
		return nil, fmt.Errorf("manifest %s describes %q, not %q", ref.FullPath, f.Name, ref.Name)
	}
	return f.Declarations, nil
}
