package refsync

import (
	"fmt"
	"strings"

	"github.com/jward/refsync/internal/store"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list/search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByName     SortField = "name"
	SortByKind     SortField = "kind"
	SortByLibrary  SortField = "library"
	SortByRefCount SortField = "ref_count"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// DeclarationResult extends a declaration with computed fields useful for
// discovery.
type DeclarationResult struct {
	store.Declaration
	Library  string // identity of the contributing library; empty for user source
	RefCount int    // identifier references bound to this declaration
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// DeclarationFilter specifies which declarations to include. Zero
// values match everything.
type DeclarationFilter struct {
	Kinds      []string // match any of these kinds
	Library    *string  // restrict to one library identity
	ProjectID  *string  // restrict to one project's user source
	ParentID   *int64   // restrict to direct members of this declaration
	UserOnly   bool
	GlobalOnly bool
}

func (f DeclarationFilter) where() ([]string, []any) {
	var where []string
	var args []any
	if len(f.Kinds) > 0 {
		where = append(where, "d.kind IN ("+strings.Repeat("?,", len(f.Kinds)-1)+"?)")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.Library != nil {
		where = append(where, "l.identity = ?")
		args = append(args, *f.Library)
	}
	if f.ProjectID != nil {
		where = append(where, "d.is_user_defined = TRUE AND d.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.ParentID != nil {
		where = append(where, "d.parent_declaration_id = ?")
		args = append(args, *f.ParentID)
	}
	if f.UserOnly {
		where = append(where, "d.is_user_defined = TRUE")
	}
	if f.GlobalOnly {
		where = append(where, "d.is_global = TRUE")
	}
	return where, args
}

// declarationSortColumn returns the SQL ORDER BY expression for
// declaration queries. Falls back to "d.name" for unknown fields.
func declarationSortColumn(field SortField) string {
	switch field {
	case SortByKind:
		return "d.kind"
	case SortByLibrary:
		return "library"
	case SortByRefCount:
		return "ref_count"
	default:
		return "d.name"
	}
}

// sortDirection returns "ASC" or "DESC".
func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

// --- Enumeration and search ---

// Declarations lists declarations matching filter.
func (q *QueryBuilder) Declarations(filter DeclarationFilter, sort Sort, page Pagination) (*PagedResult[DeclarationResult], error) {
	return q.SearchDeclarations("", filter, sort, page)
}

// SearchDeclarations performs glob-style search on declaration names.
// '*' is the wildcard (mapped to SQL '%'). Matching is case-insensitive
// for ASCII, like identifier lookup in the host language.
func (q *QueryBuilder) SearchDeclarations(pattern string, filter DeclarationFilter, sort Sort, page Pagination) (*PagedResult[DeclarationResult], error) {
	page = page.normalize()

	where, args := filter.where()
	// Escape literal % and _ first, then convert * to %.
	if pattern != "" && pattern != "*" {
		likePattern := strings.ReplaceAll(escapeLike(pattern), "*", "%")
		where = append([]string{"d.name LIKE ? ESCAPE '\\'"}, where...)
		args = append([]any{likePattern}, args...)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countSQL := `SELECT COUNT(*) FROM declarations d LEFT JOIN libraries l ON d.library_id = l.id ` + whereClause
	var totalCount int
	if err := q.store.DB().QueryRow(countSQL, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("search declarations: count: %w", err)
	}

	dataSQL := fmt.Sprintf(
		`SELECT %s, COALESCE(l.identity, '') AS library,
			(SELECT COUNT(*) FROM identifier_references r WHERE r.declaration_id = d.id) AS ref_count
		 FROM declarations d
		 LEFT JOIN libraries l ON d.library_id = l.id
		 %s
		 ORDER BY %s %s, d.id
		 LIMIT ? OFFSET ?`,
		prefixDeclarationCols("d"), whereClause, declarationSortColumn(sort.Field), sortDirection(sort.Order),
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("search declarations: query: %w", err)
	}
	defer rows.Close()

	items := []DeclarationResult{}
	for rows.Next() {
		var dr DeclarationResult
		var d *store.Declaration
		d, err = store.ScanDeclarationRow(rowWithExtras{rows: rows, extras: []any{&dr.Library, &dr.RefCount}})
		if err != nil {
			return nil, fmt.Errorf("search declarations: scan: %w", err)
		}
		dr.Declaration = *d
		items = append(items, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search declarations: rows: %w", err)
	}

	return &PagedResult[DeclarationResult]{Items: items, TotalCount: totalCount}, nil
}

// rowWithExtras appends computed columns to a declaration scan.
type rowWithExtras struct {
	rows interface{ Scan(...any) error }
	extras []any
}

func (r rowWithExtras) Scan(dest ...any) error {
	return r.rows.Scan(append(dest, r.extras...)...)
}

// prefixDeclarationCols returns store.DeclarationCols with a table prefix
// applied.
func prefixDeclarationCols(prefix string) string {
	cols := strings.Split(store.DeclarationCols, ",")
	for i, c := range cols {
		cols[i] = prefix + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
