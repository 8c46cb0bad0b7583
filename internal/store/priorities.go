package store

import "fmt"

// SavePriorities replaces the persisted reference priority maps.
func (s *Store) SavePriorities(entries []PriorityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM library_priorities"); err != nil {
		return fmt.Errorf("save priorities: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO library_priorities (identity, project_id, priority) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save priorities: prepare: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.Identity, e.ProjectID, e.Priority); err != nil {
			return fmt.Errorf("save priorities: %s/%s: %w", e.Identity, e.ProjectID, err)
		}
	}
	return tx.Commit()
}

// LoadPriorities returns every persisted priority entry ordered by
// identity, then priority.
func (s *Store) LoadPriorities() ([]PriorityEntry, error) {
	rows, err := s.db.Query("SELECT identity, project_id, priority FROM library_priorities ORDER BY identity, priority, project_id")
	if err != nil {
		return nil, fmt.Errorf("load priorities: %w", err)
	}
	defer rows.Close()
	var entries []PriorityEntry
	for rows.Next() {
		var e PriorityEntry
		if err := rows.Scan(&e.Identity, &e.ProjectID, &e.Priority); err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
