package store

import "sync"

// BatchedStore buffers declaration-graph inserts in memory using fake
// (negative) IDs. It implements DataStore so collectors and module
// ingestion can write to it without knowing whether they're hitting
// SQLite or an in-memory buffer.
//
// A batch belongs to exactly one library (Library set) or one user
// module (Module set). CommitBatch applies it in a single transaction,
// which is what makes a library's declaration set all-or-nothing.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// Read queries are passed through to the underlying Store, which is safe
// for concurrent reads.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Library *Library
	Module  *ModuleKey

	Declarations []Declaration
	References   []IdentifierReference
	Suppressions []Suppression

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewLibraryBatch creates a BatchedStore that will add lib and its
// declarations when committed.
func NewLibraryBatch(s *Store, lib *Library) *BatchedStore {
	return &BatchedStore{
		store:      s,
		Library:    lib,
		nextFakeID: -1,
	}
}

// NewModuleBatch creates a BatchedStore that replaces all user data for
// the given module when committed.
func NewModuleBatch(s *Store, key ModuleKey) *BatchedStore {
	return &BatchedStore{
		store:      s,
		Module:     &key,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// Len reports how many rows are buffered.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Declarations) + len(b.References) + len(b.Suppressions)
}

func (b *BatchedStore) InsertDeclaration(d *Declaration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Declarations = append(b.Declarations, *d)
	return fakeID, nil
}

func (b *BatchedStore) InsertIdentifierReference(ref *IdentifierReference) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	ref.ID = fakeID
	b.References = append(b.References, *ref)
	return fakeID, nil
}

func (b *BatchedStore) InsertSuppression(sup *Suppression) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	sup.ID = fakeID
	b.Suppressions = append(b.Suppressions, *sup)
	return fakeID, nil
}

// DeclarationsByName merges committed declarations with buffered ones.
// When the batch replaces a module, committed rows of that module are
// hidden since the commit will delete them.
func (b *BatchedStore) DeclarationsByName(name string) ([]*Declaration, error) {
	dbDecls, err := b.store.DeclarationsByName(name)
	if err != nil {
		return nil, err
	}
	result := b.withoutReplaced(dbDecls)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Declarations {
		if b.Declarations[i].Name == name {
			result = append(result, &b.Declarations[i])
		}
	}
	return result, nil
}

// DeclarationsByModule merges committed declarations with buffered ones.
func (b *BatchedStore) DeclarationsByModule(projectID, module string) ([]*Declaration, error) {
	dbDecls, err := b.store.DeclarationsByModule(projectID, module)
	if err != nil {
		return nil, err
	}
	result := b.withoutReplaced(dbDecls)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Declarations {
		if b.Declarations[i].ProjectID == projectID && b.Declarations[i].Module == module {
			result = append(result, &b.Declarations[i])
		}
	}
	return result, nil
}

func (b *BatchedStore) withoutReplaced(decls []*Declaration) []*Declaration {
	if b.Module == nil {
		return decls
	}
	kept := decls[:0]
	for _, d := range decls {
		if d.IsUserDefined && d.ProjectID == b.Module.ProjectID && d.Module == b.Module.Module {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
