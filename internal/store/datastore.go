package store

// DataStore is the interface for declaration-graph writes. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for one library
// or one user module) implement this interface.
type DataStore interface {
	// Inserts return the assigned ID.
	InsertDeclaration(d *Declaration) (int64, error)
	InsertIdentifierReference(ref *IdentifierReference) (int64, error)
	InsertSuppression(sup *Suppression) (int64, error)

	// Queries needed while binding references to declarations.
	DeclarationsByName(name string) ([]*Declaration, error)
	DeclarationsByModule(projectID, module string) ([]*Declaration, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
