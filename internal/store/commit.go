package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// (positive) IDs, and all FK references within the batch are rewritten
// using the fakeToReal mapping.
//
// For a library batch the library row is inserted first and every
// declaration is stamped with its ID. For a module batch the module's
// previous user data is deleted first.
//
// Insert order respects FK dependencies:
//  1. Library (library batches only)
//  2. Declarations (parent_declaration_id may be fake)
//  3. IdentifierReferences (declaration_id, scope_declaration_id)
//  4. Suppressions (scope_declaration_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	var libraryID *int64
	if batch.Library != nil {
		lib := batch.Library
		if lib.Hash == "" {
			hashes := make([]string, len(batch.Declarations))
			for i := range batch.Declarations {
				hashes[i] = batch.Declarations[i].SignatureHash
			}
			lib.Hash = ComputeLibraryHash(hashes)
		}
		if lib.LoadedAt.IsZero() {
			lib.LoadedAt = time.Now()
		}
		id, err := insertLibraryTx(tx, lib)
		if err != nil {
			return fmt.Errorf("commit batch: library %q: %w", lib.Identity, err)
		}
		lib.ID = id
		libraryID = &id
	}
	if batch.Module != nil {
		if err := deleteModuleDataTx(tx, batch.Module.ProjectID, batch.Module.Module); err != nil {
			return fmt.Errorf("commit batch: replace module %s: %w", batch.Module, err)
		}
	}

	fakeToReal := make(map[int64]int64)
	remap := func(id *int64) *int64 {
		if id == nil || *id >= 0 {
			return id
		}
		realID, ok := fakeToReal[*id]
		if !ok {
			return nil
		}
		return &realID
	}

	// 2. Declarations. Parents are always buffered before their members.
	for _, d := range batch.Declarations {
		if libraryID != nil {
			d.LibraryID = libraryID
			d.ProjectID = batch.Library.Identity
		}
		if d.ParentDeclarationID != nil && *d.ParentDeclarationID < 0 {
			realParent, ok := fakeToReal[*d.ParentDeclarationID]
			if !ok {
				return fmt.Errorf("commit batch: declaration %q has parent_declaration_id=%d not in fakeToReal map", d.Name, *d.ParentDeclarationID)
			}
			d.ParentDeclarationID = &realParent
		}
		realID, err := insertDeclarationTx(tx, &d)
		if err != nil {
			return fmt.Errorf("commit batch: declaration %q: %w", d.Name, err)
		}
		fakeToReal[d.ID] = realID
	}

	// 3. IdentifierReferences
	for _, ref := range batch.References {
		ref.DeclarationID = remap(ref.DeclarationID)
		ref.ScopeDeclarationID = remap(ref.ScopeDeclarationID)
		realID, err := insertIdentifierReferenceTx(tx, &ref)
		if err != nil {
			return fmt.Errorf("commit batch: identifier reference %q: %w", ref.Name, err)
		}
		fakeToReal[ref.ID] = realID
	}

	// 4. Suppressions
	for _, sup := range batch.Suppressions {
		sup.ScopeDeclarationID = remap(sup.ScopeDeclarationID)
		realID, err := insertSuppressionTx(tx, &sup)
		if err != nil {
			return fmt.Errorf("commit batch: suppression: %w", err)
		}
		fakeToReal[sup.ID] = realID
	}

	return tx.Commit()
}

// deleteModuleDataTx removes a user module's declarations, references and
// suppressions. References in other modules that pointed at the removed
// declarations become unresolved.
func deleteModuleDataTx(tx *sql.Tx, projectID, module string) error {
	where := "project_id = ? AND module = ? AND library_id IS NULL"
	for _, q := range []string{
		"UPDATE identifier_references SET declaration_id = NULL WHERE declaration_id IN (SELECT id FROM declarations WHERE " + where + ")",
		"DELETE FROM suppressions WHERE project_id = ? AND module = ?",
		"DELETE FROM identifier_references WHERE project_id = ? AND module = ?",
		"DELETE FROM declarations WHERE " + where,
	} {
		if _, err := tx.Exec(q, projectID, module); err != nil {
			return err
		}
	}
	return nil
}

// --- Transaction-scoped insert helpers ---
// These mirror the Store insert methods but accept *sql.Tx instead of using s.db.

func insertLibraryTx(tx *sql.Tx, lib *Library) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO libraries (identity, name, path, hash, loaded_at) VALUES (?, ?, ?, ?, ?)",
		lib.Identity, lib.Name, lib.Path, lib.Hash, lib.LoadedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertDeclarationTx(tx *sql.Tx, d *Declaration) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO declarations (library_id, project_id, module, name, kind, type_name,
			is_object_type, is_global, is_user_defined, signature_hash,
			start_line, start_col, end_line, end_col, parent_declaration_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.LibraryID, d.ProjectID, d.Module, d.Name, d.Kind, d.TypeName,
		d.IsObjectType, d.IsGlobal, d.IsUserDefined, d.SignatureHash,
		d.StartLine, d.StartCol, d.EndLine, d.EndCol, d.ParentDeclarationID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertIdentifierReferenceTx(tx *sql.Tx, ref *IdentifierReference) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO identifier_references (project_id, module, declaration_id, scope_declaration_id,
			name, is_assignment, is_set_assignment, failed_let_coercion,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ProjectID, ref.Module, ref.DeclarationID, ref.ScopeDeclarationID,
		ref.Name, ref.IsAssignment, ref.IsSetAssignment, ref.FailedLetCoercion,
		ref.StartLine, ref.StartCol, ref.EndLine, ref.EndCol,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertSuppressionTx(tx *sql.Tx, sup *Suppression) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO suppressions (project_id, module, scope_declaration_id, line, check_name)
		 VALUES (?, ?, ?, ?, ?)`,
		sup.ProjectID, sup.Module, sup.ScopeDeclarationID, sup.Line, sup.Check,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
