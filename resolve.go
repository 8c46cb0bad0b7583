package refsync

import (
	"github.com/jward/refsync/internal/store"
)

// binder picks the declaration an identifier reference points at. It
// reads through a DataStore so module ingestion can bind against rows
// still buffered in its batch.
type binder struct {
	ds      store.DataStore
	maps    *priorityMaps
	modules map[ModuleKey]*int64
}

// bind resolves name as seen from scopeID inside a module. Lookup order:
// the enclosing member's locals, the module's own declarations, then
// project and library globals.
func (b *binder) bind(projectID, module string, moduleDeclID, scopeID *int64, name string) (*int64, error) {
	cands, err := b.ds.DeclarationsByName(name)
	if err != nil {
		return nil, err
	}
	var local, moduleLevel *store.Declaration
	for _, d := range cands {
		if !d.IsUserDefined || d.ProjectID != projectID || d.Module != module {
			continue
		}
		if local == nil && scopeID != nil && sameTarget(d.ParentDeclarationID, scopeID) {
			local = d
		}
		if moduleLevel == nil && (d.ParentDeclarationID == nil || (moduleDeclID != nil && sameTarget(d.ParentDeclarationID, moduleDeclID))) {
			moduleLevel = d
		}
	}
	switch {
	case local != nil:
		return &local.ID, nil
	case moduleLevel != nil:
		return &moduleLevel.ID, nil
	}
	if g := b.pickGlobal(cands, projectID); g != nil {
		return &g.ID, nil
	}
	return nil, nil
}

// bindStored re-resolves a committed reference.
func (b *binder) bindStored(ref *IdentifierReference) (*int64, error) {
	key := ModuleKey{ProjectID: ref.ProjectID, Module: ref.Module}
	if b.modules == nil {
		b.modules = make(map[ModuleKey]*int64)
	}
	modID, ok := b.modules[key]
	if !ok {
		decls, err := b.ds.DeclarationsByModule(ref.ProjectID, ref.Module)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			if d.IsUserDefined && d.ParentDeclarationID == nil && d.Name == ref.Module {
				id := d.ID
				modID = &id
				break
			}
		}
		b.modules[key] = modID
	}
	return b.bind(ref.ProjectID, ref.Module, modID, ref.ScopeDeclarationID, ref.Name)
}

// global resolves a global name for projectID.
func (b *binder) global(projectID, name string) (*store.Declaration, error) {
	cands, err := b.ds.DeclarationsByName(name)
	if err != nil {
		return nil, err
	}
	return b.pickGlobal(cands, projectID), nil
}

// pickGlobal chooses among same-named declarations: a user module or
// global of the project first, otherwise the library the project ranks
// highest (lowest priority number).
func (b *binder) pickGlobal(cands []*store.Declaration, projectID string) *store.Declaration {
	var best *store.Declaration
	bestPriority := 0
	for _, d := range cands {
		if d.IsUserDefined {
			if d.ProjectID == projectID && (d.IsGlobal || d.Kind == KindModule) {
				return d
			}
			continue
		}
		if d.LibraryID == nil || !d.IsGlobal {
			continue
		}
		m, ok := b.maps.get(d.ProjectID)
		if !ok {
			continue
		}
		p, ok := m.Priority(projectID)
		if !ok {
			continue
		}
		if best == nil || p < bestPriority {
			best, bestPriority = d, p
		}
	}
	return best
}
