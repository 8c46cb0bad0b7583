package refsync

// SuppressionIndex answers "is check X suppressed here" for modules,
// members and single lines.
type SuppressionIndex struct {
	modules map[ModuleKey][]string
	members map[int64][]string
	lines   map[lineKey][]string
}

type lineKey struct {
	module ModuleKey
	line   int
}

// NewSuppressionIndex indexes sups.
func NewSuppressionIndex(sups []*Suppression) *SuppressionIndex {
	idx := &SuppressionIndex{
		modules: make(map[ModuleKey][]string),
		members: make(map[int64][]string),
		lines:   make(map[lineKey][]string),
	}
	for _, s := range sups {
		key := ModuleKey{ProjectID: s.ProjectID, Module: s.Module}
		switch {
		case s.ScopeDeclarationID != nil:
			idx.members[*s.ScopeDeclarationID] = append(idx.members[*s.ScopeDeclarationID], s.Check)
		case s.Line > 0:
			lk := lineKey{module: key, line: s.Line}
			idx.lines[lk] = append(idx.lines[lk], s.Check)
		default:
			idx.modules[key] = append(idx.modules[key], s.Check)
		}
	}
	return idx
}

func matches(checks []string, check string) bool {
	for _, c := range checks {
		if c == "" || c == check {
			return true
		}
	}
	return false
}

// IsModuleIgnoring reports whether check is suppressed for the module.
func (idx *SuppressionIndex) IsModuleIgnoring(key ModuleKey, check string) bool {
	return matches(idx.modules[key], check)
}

// IsIgnoringCheck reports whether check is suppressed for ref: on its
// line, in its enclosing member, or for its whole module.
func (idx *SuppressionIndex) IsIgnoringCheck(ref *IdentifierReference, check string) bool {
	key := ModuleKey{ProjectID: ref.ProjectID, Module: ref.Module}
	if matches(idx.lines[lineKey{module: key, line: ref.StartLine}], check) {
		return true
	}
	if ref.ScopeDeclarationID != nil && matches(idx.members[*ref.ScopeDeclarationID], check) {
		return true
	}
	return idx.IsModuleIgnoring(key, check)
}
