package refsync

import (
	"fmt"

	"github.com/jward/refsync/internal/store"
)

// QueryBuilder provides read access to the declaration graph for
// consumers. It is safe to use while a pass runs: each library appears
// in full or not at all.
type QueryBuilder struct {
	store  *store.Store
	engine *Engine
}

// Location is a source position range inside a user module.
type Location struct {
	ProjectID string `json:"project"`
	Module    string `json:"module"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// ReferenceLocation returns where ref occurs.
func ReferenceLocation(ref *IdentifierReference) Location {
	return Location{
		ProjectID: ref.ProjectID,
		Module:    ref.Module,
		StartLine: ref.StartLine,
		StartCol:  ref.StartCol,
		EndLine:   ref.EndLine,
		EndCol:    ref.EndCol,
	}
}

// Libraries returns every loaded library.
func (q *QueryBuilder) Libraries() ([]*Library, error) {
	return q.store.Libraries()
}

// LibraryDeclarations returns the declarations a loaded library
// contributed, or nil when the library is not loaded.
func (q *QueryBuilder) LibraryDeclarations(identity string) ([]*GraphDeclaration, error) {
	lib, err := q.store.LibraryByIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("library declarations: %w", err)
	}
	if lib == nil {
		return nil, nil
	}
	return q.store.DeclarationsByLibrary(lib.ID)
}

// DeclarationsOfKind returns every declaration of the given kind, from
// libraries and user source alike.
func (q *QueryBuilder) DeclarationsOfKind(kind string) ([]*GraphDeclaration, error) {
	return q.store.DeclarationsByKind(kind)
}

// UserDeclarations returns user-authored declarations of the given kind.
func (q *QueryBuilder) UserDeclarations(kind string) ([]*GraphDeclaration, error) {
	return q.store.UserDeclarationsByKind(kind)
}

// Declaration returns the declaration with the given ID, or nil.
func (q *QueryBuilder) Declaration(id int64) (*GraphDeclaration, error) {
	return q.store.DeclarationByID(id)
}

// DeclarationsNamed returns every declaration called name.
func (q *QueryBuilder) DeclarationsNamed(name string) ([]*GraphDeclaration, error) {
	return q.store.DeclarationsByName(name)
}

// ModuleDeclaration returns the declaration of a user module, or nil.
func (q *QueryBuilder) ModuleDeclaration(key ModuleKey) (*GraphDeclaration, error) {
	return q.store.ModuleDeclaration(key.ProjectID, key.Module)
}

// IdentifierReferencesByModule returns all identifier references grouped
// by module, read in one snapshot.
func (q *QueryBuilder) IdentifierReferencesByModule() (map[ModuleKey][]*IdentifierReference, error) {
	return q.store.IdentifierReferencesByModule()
}

// FailedLetCoercions returns the module's references whose implicit
// let-coercion failed to resolve.
func (q *QueryBuilder) FailedLetCoercions(key ModuleKey) ([]*IdentifierReference, error) {
	return q.store.FailedLetCoercions(key.ProjectID, key.Module)
}

// ReferencesTo returns the locations of references bound to declID.
func (q *QueryBuilder) ReferencesTo(declID int64) ([]Location, error) {
	refs, err := q.store.IdentifierReferencesTo(declID)
	if err != nil {
		return nil, fmt.Errorf("references to: %w", err)
	}
	locs := make([]Location, 0, len(refs))
	for _, r := range refs {
		locs = append(locs, ReferenceLocation(r))
	}
	return locs, nil
}

// UnresolvedReferences returns references that point at nothing in the
// graph.
func (q *QueryBuilder) UnresolvedReferences() ([]*IdentifierReference, error) {
	return q.store.UnresolvedReferences()
}

// ResolveGlobal resolves name for projectID in priority order.
func (q *QueryBuilder) ResolveGlobal(projectID, name string) (*GraphDeclaration, error) {
	return q.engine.ResolveGlobal(projectID, name)
}

// Suppressions returns an index over every suppression in the graph.
func (q *QueryBuilder) Suppressions() (*SuppressionIndex, error) {
	sups, err := q.store.Suppressions()
	if err != nil {
		return nil, fmt.Errorf("suppressions: %w", err)
	}
	return NewSuppressionIndex(sups), nil
}
