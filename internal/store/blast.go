package store

import "fmt"

// ModulesReferencingLibrary returns the user modules holding at least one
// reference bound to a declaration of the given library. These are the
// modules whose resolution changes when the library is unloaded.
func (s *Store) ModulesReferencingLibrary(libraryID int64) ([]ModuleKey, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT r.project_id, r.module
		 FROM identifier_references r
		 JOIN declarations d ON d.id = r.declaration_id
		 WHERE d.library_id = ?
		 ORDER BY r.project_id, r.module`,
		libraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("modules referencing library: %w", err)
	}
	defer rows.Close()
	var keys []ModuleKey
	for rows.Next() {
		var k ModuleKey
		if err := rows.Scan(&k.ProjectID, &k.Module); err != nil {
			return nil, fmt.Errorf("scan module key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UnresolvedReferences returns references whose target is no longer in
// the graph, optionally limited to the given declaration names.
func (s *Store) UnresolvedReferences(names ...string) ([]*IdentifierReference, error) {
	query := "SELECT " + identifierRefCols + " FROM identifier_references WHERE declaration_id IS NULL"
	if len(names) > 0 {
		query += " AND name IN (" + placeholderList(len(names)) + ")"
	}
	query += " ORDER BY project_id, module, start_line, start_col, id"
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	refs, err := s.queryIdentifierRefs(query, args...)
	if err != nil {
		return nil, fmt.Errorf("unresolved references: %w", err)
	}
	return refs, nil
}

// DeleteLibraryData removes a library and every declaration it
// contributed in one transaction. References bound into the library are
// kept but become unresolved.
func (s *Store) DeleteLibraryData(libraryID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"UPDATE identifier_references SET declaration_id = NULL WHERE declaration_id IN (SELECT id FROM declarations WHERE library_id = ?)",
		"UPDATE identifier_references SET scope_declaration_id = NULL WHERE scope_declaration_id IN (SELECT id FROM declarations WHERE library_id = ?)",
		"DELETE FROM declarations WHERE library_id = ?",
		"DELETE FROM libraries WHERE id = ?",
	} {
		if _, err := tx.Exec(q, libraryID); err != nil {
			return fmt.Errorf("delete library data: %w", err)
		}
	}
	return tx.Commit()
}

// BindReference points a reference at declID, or unbinds it when declID
// is nil.
func (s *Store) BindReference(refID int64, declID *int64) error {
	if _, err := s.db.Exec("UPDATE identifier_references SET declaration_id = ? WHERE id = ?", declID, refID); err != nil {
		return fmt.Errorf("bind reference %d: %w", refID, err)
	}
	return nil
}
