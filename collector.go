package refsync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jward/refsync/internal/store"
)

// Declaration kinds.
const (
	KindLibrary    = "library"
	KindModule     = "module"
	KindClass      = "class"
	KindEnum       = "enum"
	KindEnumMember = "enum_member"
	KindUserType   = "user_type"
	KindFunction   = "function"
	KindProcedure  = "procedure"
	KindProperty   = "property"
	KindVariable   = "variable"
	KindConstant   = "constant"
	KindParameter  = "parameter"
	KindEvent      = "event"
)

// Declaration is one symbol produced by a Collector. Members nest under
// their parent (a class's properties, an enum's values).
type Declaration struct {
	Name         string        `json:"name" toml:"name"`
	Kind         string        `json:"kind" toml:"kind"`
	TypeName     string        `json:"type,omitempty" toml:"type,omitempty"`
	IsObjectType bool          `json:"object,omitempty" toml:"object,omitempty"`
	IsGlobal     bool          `json:"global,omitempty" toml:"global,omitempty"`
	Members      []Declaration `json:"members,omitempty" toml:"member,omitempty"`
}

// Collector produces the declarations one library contributes. An error
// means the library could not be loaded; partial output is discarded.
type Collector interface {
	Collect(ctx context.Context, ref Reference) ([]Declaration, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context, ref Reference) ([]Declaration, error)

func (f CollectorFunc) Collect(ctx context.Context, ref Reference) ([]Declaration, error) {
	return f(ctx, ref)
}

// ExtCollector dispatches on the lower-cased file extension of the
// reference path (".toml", ".go"). The "" key is the fallback.
type ExtCollector map[string]Collector

func (c ExtCollector) Collect(ctx context.Context, ref Reference) ([]Declaration, error) {
	ext := strings.ToLower(filepath.Ext(ref.FullPath))
	if col, ok := c[ext]; ok {
		return col.Collect(ctx, ref)
	}
	if col, ok := c[""]; ok {
		return col.Collect(ctx, ref)
	}
	return nil, fmt.Errorf("no collector for %q", ref.FullPath)
}

// LoadResult is the outcome of collecting one library.
type LoadResult struct {
	Reference    Reference `json:"reference"`
	Identity     string    `json:"identity"`
	Declarations int       `json:"declarations"`
	Err          error     `json:"-"`
}

// Loaded reports whether the library's declarations are in the graph.
func (r LoadResult) Loaded() bool { return r.Err == nil }

// stageDeclarations writes decls and their members into ds below parentID.
// It returns the number of rows written.
func stageDeclarations(ds store.DataStore, module string, parentID *int64, parentName string, decls []Declaration) (int, error) {
	n := 0
	for _, d := range decls {
		if d.Name == "" {
			return n, fmt.Errorf("declaration without a name under %q", parentName)
		}
		kind := d.Kind
		if kind == "" {
			kind = KindVariable
		}
		row := &store.Declaration{
			Module:              module,
			Name:                d.Name,
			Kind:                kind,
			TypeName:            d.TypeName,
			IsObjectType:        d.IsObjectType,
			IsGlobal:            d.IsGlobal,
			ParentDeclarationID: parentID,
			SignatureHash:       store.ComputeSignatureHash(d.Name, kind, d.TypeName, parentName, d.IsObjectType, d.IsGlobal),
		}
		id, err := ds.InsertDeclaration(row)
		if err != nil {
			return n, fmt.Errorf("stage %q: %w", d.Name, err)
		}
		n++
		if len(d.Members) > 0 {
			m, err := stageDeclarations(ds, module, &id, parentName+"."+d.Name, d.Members)
			n += m
			if err != nil {
				return n, err
			}
		}
	}
	return n, nil
}
