package store

import (
	"database/sql"
	"fmt"
)

// --- Declaration operations ---

func (s *Store) InsertDeclaration(d *Declaration) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO declarations (library_id, project_id, module, name, kind, type_name,
			is_object_type, is_global, is_user_defined, signature_hash,
			start_line, start_col, end_line, end_col, parent_declaration_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.LibraryID, d.ProjectID, d.Module, d.Name, d.Kind, d.TypeName,
		d.IsObjectType, d.IsGlobal, d.IsUserDefined, d.SignatureHash,
		d.StartLine, d.StartCol, d.EndLine, d.EndCol, d.ParentDeclarationID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert declaration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

// DeclarationCols is the column list for declaration queries, exported for
// use by QueryBuilder.
const DeclarationCols = `id, library_id, project_id, module, name, kind, type_name,
	is_object_type, is_global, is_user_defined, signature_hash,
	start_line, start_col, end_line, end_col, parent_declaration_id`

func scanDeclaration(sc scanner) (*Declaration, error) {
	d := &Declaration{}
	var typeName, sigHash sql.NullString
	err := sc.Scan(
		&d.ID, &d.LibraryID, &d.ProjectID, &d.Module, &d.Name, &d.Kind, &typeName,
		&d.IsObjectType, &d.IsGlobal, &d.IsUserDefined, &sigHash,
		&d.StartLine, &d.StartCol, &d.EndLine, &d.EndCol, &d.ParentDeclarationID,
	)
	if err != nil {
		return nil, err
	}
	d.TypeName = typeName.String
	d.SignatureHash = sigHash.String
	return d, nil
}

// ScanDeclarationRow scans a single row into a Declaration. Exported for
// use by QueryBuilder.
func ScanDeclarationRow(sc interface{ Scan(...any) error }) (*Declaration, error) {
	return scanDeclaration(sc)
}

func (s *Store) queryDeclarations(query string, args ...any) ([]*Declaration, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var decls []*Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan declaration: %w", err)
		}
		decls = append(decls, d)
	}
	return decls, rows.Err()
}

func (s *Store) DeclarationByID(id int64) (*Declaration, error) {
	d, err := scanDeclaration(s.db.QueryRow("SELECT "+DeclarationCols+" FROM declarations WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("declaration by id: %w", err)
	}
	return d, nil
}

func (s *Store) DeclarationsByName(name string) ([]*Declaration, error) {
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE name = ? ORDER BY id", name)
}

func (s *Store) DeclarationsByModule(projectID, module string) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE project_id = ? AND module = ? ORDER BY id",
		projectID, module,
	)
}

func (s *Store) DeclarationsByKind(kind string) ([]*Declaration, error) {
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE kind = ? ORDER BY id", kind)
}

// UserDeclarationsByKind returns declarations of the given kind that come
// from user source rather than a library.
func (s *Store) UserDeclarationsByKind(kind string) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE kind = ? AND is_user_defined = TRUE ORDER BY id", kind,
	)
}

func (s *Store) DeclarationsByLibrary(libraryID int64) ([]*Declaration, error) {
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE library_id = ? ORDER BY id", libraryID)
}

func (s *Store) DeclarationChildren(parentID int64) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE parent_declaration_id = ? ORDER BY id", parentID,
	)
}

// GlobalDeclarationsByName returns globally visible declarations named
// name, from user source and from every loaded library.
func (s *Store) GlobalDeclarationsByName(name string) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE name = ? AND is_global = TRUE ORDER BY id", name,
	)
}

// ModuleDeclaration returns the top-level declaration of a module: the
// declaration with no parent whose name equals the module name.
func (s *Store) ModuleDeclaration(projectID, module string) (*Declaration, error) {
	d, err := scanDeclaration(s.db.QueryRow(
		"SELECT "+DeclarationCols+` FROM declarations
		 WHERE project_id = ? AND module = ? AND name = ? AND parent_declaration_id IS NULL
		 ORDER BY id LIMIT 1`,
		projectID, module, module,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module declaration: %w", err)
	}
	return d, nil
}

// DeleteModuleData transactionally removes all user data for a module.
func (s *Store) DeleteModuleData(projectID, module string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := deleteModuleDataTx(tx, projectID, module); err != nil {
		return fmt.Errorf("delete module data: %w", err)
	}
	return tx.Commit()
}
