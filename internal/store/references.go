package store

import "fmt"

// --- IdentifierReference operations ---

func (s *Store) InsertIdentifierReference(ref *IdentifierReference) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO identifier_references (project_id, module, declaration_id, scope_declaration_id,
			name, is_assignment, is_set_assignment, failed_let_coercion,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ProjectID, ref.Module, ref.DeclarationID, ref.ScopeDeclarationID,
		ref.Name, ref.IsAssignment, ref.IsSetAssignment, ref.FailedLetCoercion,
		ref.StartLine, ref.StartCol, ref.EndLine, ref.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert identifier reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ref.ID = id
	return id, nil
}

const identifierRefCols = `id, project_id, module, declaration_id, scope_declaration_id,
	name, is_assignment, is_set_assignment, failed_let_coercion,
	start_line, start_col, end_line, end_col`

func (s *Store) queryIdentifierRefs(query string, args ...any) ([]*IdentifierReference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*IdentifierReference
	for rows.Next() {
		r := &IdentifierReference{}
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.Module, &r.DeclarationID, &r.ScopeDeclarationID,
			&r.Name, &r.IsAssignment, &r.IsSetAssignment, &r.FailedLetCoercion,
			&r.StartLine, &r.StartCol, &r.EndLine, &r.EndCol,
		); err != nil {
			return nil, fmt.Errorf("scan identifier reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// IdentifierReferencesByModule returns every identifier reference in the
// graph grouped by the module it occurs in. All rows are read inside one
// query, so the grouping reflects a single snapshot.
func (s *Store) IdentifierReferencesByModule() (map[ModuleKey][]*IdentifierReference, error) {
	refs, err := s.queryIdentifierRefs(
		"SELECT " + identifierRefCols + " FROM identifier_references ORDER BY project_id, module, start_line, start_col, id",
	)
	if err != nil {
		return nil, fmt.Errorf("identifier references by module: %w", err)
	}
	grouped := make(map[ModuleKey][]*IdentifierReference)
	for _, r := range refs {
		key := ModuleKey{ProjectID: r.ProjectID, Module: r.Module}
		grouped[key] = append(grouped[key], r)
	}
	return grouped, nil
}

func (s *Store) IdentifierReferencesInModule(projectID, module string) ([]*IdentifierReference, error) {
	return s.queryIdentifierRefs(
		"SELECT "+identifierRefCols+" FROM identifier_references WHERE project_id = ? AND module = ? ORDER BY start_line, start_col, id",
		projectID, module,
	)
}

func (s *Store) IdentifierReferencesTo(declarationID int64) ([]*IdentifierReference, error) {
	return s.queryIdentifierRefs(
		"SELECT "+identifierRefCols+" FROM identifier_references WHERE declaration_id = ? ORDER BY id", declarationID,
	)
}

// FailedLetCoercions returns references in a module whose implicit
// let-coercion could not be resolved by the parser.
func (s *Store) FailedLetCoercions(projectID, module string) ([]*IdentifierReference, error) {
	return s.queryIdentifierRefs(
		"SELECT "+identifierRefCols+` FROM identifier_references
		 WHERE project_id = ? AND module = ? AND failed_let_coercion = TRUE
		 ORDER BY start_line, start_col, id`,
		projectID, module,
	)
}

// --- Suppression operations ---

func (s *Store) InsertSuppression(sup *Suppression) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO suppressions (project_id, module, scope_declaration_id, line, check_name)
		 VALUES (?, ?, ?, ?, ?)`,
		sup.ProjectID, sup.Module, sup.ScopeDeclarationID, sup.Line, sup.Check,
	)
	if err != nil {
		return 0, fmt.Errorf("insert suppression: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	sup.ID = id
	return id, nil
}

// Suppressions returns every suppression in the graph.
func (s *Store) Suppressions() ([]*Suppression, error) {
	rows, err := s.db.Query(
		"SELECT id, project_id, module, scope_declaration_id, line, check_name FROM suppressions ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("suppressions: %w", err)
	}
	defer rows.Close()
	var sups []*Suppression
	for rows.Next() {
		sup := &Suppression{}
		if err := rows.Scan(&sup.ID, &sup.ProjectID, &sup.Module, &sup.ScopeDeclarationID, &sup.Line, &sup.Check); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		sups = append(sups, sup)
	}
	return sups, rows.Err()
}

// IdentifierReferencesNamed returns references with any of the given
// names, bound or not.
func (s *Store) IdentifierReferencesNamed(names ...string) ([]*IdentifierReference, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	refs, err := s.queryIdentifierRefs(
		"SELECT "+identifierRefCols+" FROM identifier_references WHERE name IN ("+placeholderList(len(names))+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("identifier references named: %w", err)
	}
	return refs, nil
}
