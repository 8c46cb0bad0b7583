package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the declaration graph.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
// WAL lets readers keep a consistent snapshot while a synchronization
// pass commits or removes a library.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS libraries (
  id              INTEGER PRIMARY KEY,
  identity        TEXT NOT NULL UNIQUE,
  name            TEXT NOT NULL,
  path            TEXT,
  hash            TEXT,
  loaded_at       TIMESTAMP
);

CREATE TABLE IF NOT EXISTS declarations (
  id              INTEGER PRIMARY KEY,
  library_id      INTEGER REFERENCES libraries(id),
  project_id      TEXT NOT NULL DEFAULT '',
  module          TEXT NOT NULL DEFAULT '',
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  type_name       TEXT,
  is_object_type  BOOLEAN DEFAULT FALSE,
  is_global       BOOLEAN DEFAULT FALSE,
  is_user_defined BOOLEAN DEFAULT FALSE,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  parent_declaration_id INTEGER REFERENCES declarations(id)
);

CREATE TABLE IF NOT EXISTS identifier_references (
  id              INTEGER PRIMARY KEY,
  project_id      TEXT NOT NULL,
  module          TEXT NOT NULL,
  declaration_id  INTEGER REFERENCES declarations(id),
  scope_declaration_id INTEGER REFERENCES declarations(id),
  name            TEXT NOT NULL,
  is_assignment   BOOLEAN DEFAULT FALSE,
  is_set_assignment BOOLEAN DEFAULT FALSE,
  failed_let_coercion BOOLEAN DEFAULT FALSE,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS suppressions (
  id              INTEGER PRIMARY KEY,
  project_id      TEXT NOT NULL,
  module          TEXT NOT NULL,
  scope_declaration_id INTEGER REFERENCES declarations(id),
  line            INTEGER DEFAULT 0,
  check_name      TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS library_priorities (
  identity        TEXT NOT NULL,
  project_id      TEXT NOT NULL,
  priority        INTEGER NOT NULL,
  PRIMARY KEY (identity, project_id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_declarations_library ON declarations(library_id);
CREATE INDEX IF NOT EXISTS idx_declarations_module ON declarations(project_id, module);
CREATE INDEX IF NOT EXISTS idx_declarations_name ON declarations(name);
CREATE INDEX IF NOT EXISTS idx_declarations_kind ON declarations(kind);
CREATE INDEX IF NOT EXISTS idx_declarations_parent ON declarations(parent_declaration_id);
CREATE INDEX IF NOT EXISTS idx_identifier_refs_module ON identifier_references(project_id, module);
CREATE INDEX IF NOT EXISTS idx_identifier_refs_declaration ON identifier_references(declaration_id);
CREATE INDEX IF NOT EXISTS idx_identifier_refs_scope ON identifier_references(scope_declaration_id);
CREATE INDEX IF NOT EXISTS idx_suppressions_module ON suppressions(project_id, module);
`

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
