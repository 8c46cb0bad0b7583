package store

import (
	"database/sql"
	"fmt"
)

// --- Library operations ---

// InsertLibrary adds a library row outside of a batch. Used for tests and
// for restoring rows; synchronization goes through CommitBatch.
func (s *Store) InsertLibrary(lib *Library) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO libraries (identity, name, path, hash, loaded_at) VALUES (?, ?, ?, ?, ?)",
		lib.Identity, lib.Name, lib.Path, lib.Hash, lib.LoadedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert library: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	lib.ID = id
	return id, nil
}

const libraryCols = "id, identity, name, path, hash, loaded_at"

func scanLibrary(sc scanner) (*Library, error) {
	lib := &Library{}
	var path, hash sql.NullString
	var loadedAt sql.NullTime
	if err := sc.Scan(&lib.ID, &lib.Identity, &lib.Name, &path, &hash, &loadedAt); err != nil {
		return nil, err
	}
	lib.Path = path.String
	lib.Hash = hash.String
	lib.LoadedAt = loadedAt.Time
	return lib, nil
}

// LibraryByIdentity returns the loaded library with the given identity,
// or nil if none is loaded.
func (s *Store) LibraryByIdentity(identity string) (*Library, error) {
	lib, err := scanLibrary(s.db.QueryRow("SELECT "+libraryCols+" FROM libraries WHERE identity = ?", identity))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("library by identity: %w", err)
	}
	return lib, nil
}

// Libraries returns every loaded library ordered by identity.
func (s *Store) Libraries() ([]*Library, error) {
	rows, err := s.db.Query("SELECT " + libraryCols + " FROM libraries ORDER BY identity")
	if err != nil {
		return nil, fmt.Errorf("libraries: %w", err)
	}
	defer rows.Close()
	var libs []*Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// LibraryDeclarationCount returns how many declarations a library holds.
func (s *Store) LibraryDeclarationCount(libraryID int64) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM declarations WHERE library_id = ?", libraryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("library declaration count: %w", err)
	}
	return n, nil
}
