package store

import "time"

// Library is one loaded external library. A row exists iff the library's
// declarations are present in the graph.
type Library struct {
	ID       int64
	Identity string
	Name     string
	Path     string
	Hash     string
	LoadedAt time.Time
}

// Declaration is a named symbol contributed by a library (LibraryID set)
// or by user source (LibraryID nil, IsUserDefined true).
type Declaration struct {
	ID                  int64
	LibraryID           *int64
	ProjectID           string
	Module              string
	Name                string
	Kind                string
	TypeName            string
	IsObjectType        bool
	IsGlobal            bool
	IsUserDefined       bool
	SignatureHash       string
	StartLine           int
	StartCol            int
	EndLine             int
	EndCol              int
	ParentDeclarationID *int64
}

// IdentifierReference is a use-site of a declaration inside a user module.
// DeclarationID is nil when the reference is unresolved, e.g. after the
// library it pointed into was unloaded.
type IdentifierReference struct {
	ID                 int64
	ProjectID          string
	Module             string
	DeclarationID      *int64
	ScopeDeclarationID *int64
	Name               string
	IsAssignment       bool
	IsSetAssignment    bool
	FailedLetCoercion  bool
	StartLine          int
	StartCol           int
	EndLine            int
	EndCol             int
}

// Suppression opts a scope out of one check (or all checks when Check is
// empty). Scope is the whole module when ScopeDeclarationID is nil and
// Line is 0, a member when ScopeDeclarationID is set, a single line
// otherwise.
type Suppression struct {
	ID                 int64
	ProjectID          string
	Module             string
	ScopeDeclarationID *int64
	Line               int
	Check              string
}

// PriorityEntry is one persisted row of a reference priority map.
type PriorityEntry struct {
	Identity  string
	ProjectID string
	Priority  int
}

// ModuleKey qualifies a user module by its project.
type ModuleKey struct {
	ProjectID string
	Module    string
}

func (k ModuleKey) String() string {
	if k.ProjectID == "" {
		return k.Module
	}
	return k.ProjectID + "." + k.Module
}
