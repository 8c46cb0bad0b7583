package refsync

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CheckObjectVariableNotSet is the name of the ObjectVariableNotSet check,
// as used in ignore lists.
const CheckObjectVariableNotSet = "ObjectVariableNotSet"

// InspectionResult is one finding of a check.
type InspectionResult struct {
	Check       string `json:"check"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Location
	ReferenceID int64 `json:"-"`
}

// Inspection is an analysis that consumes the declaration graph.
type Inspection interface {
	Name() string
	Inspect(ctx context.Context, q *QueryBuilder) ([]InspectionResult, error)
}

// RunInspections runs each inspection and returns all results ordered by
// module, position and check.
func RunInspections(ctx context.Context, q *QueryBuilder, inspections ...Inspection) ([]InspectionResult, error) {
	var all []InspectionResult
	for _, in := range inspections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := in.Inspect(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("inspection %s: %w", in.Name(), err)
		}
		all = append(all, results...)
	}
	slices.SortFunc(all, compareResults)
	return all, nil
}

func compareResults(a, b InspectionResult) int {
	return cmp.Or(
		cmp.Compare(a.ProjectID, b.ProjectID),
		cmp.Compare(a.Module, b.Module),
		cmp.Compare(a.StartLine, b.StartLine),
		cmp.Compare(a.StartCol, b.StartCol),
		cmp.Compare(a.Check, b.Check),
		cmp.Compare(a.ReferenceID, b.ReferenceID),
	)
}

// ObjectVariableNotSet flags assignments that look like they store an
// object reference without the Set keyword. Without Set the right-hand
// side is let-coerced, which assigns the object's default member instead.
//
// A reference is reported when it is an assignment whose let-coercion
// failed to resolve, or when it is a non-Set assignment to a variable of
// object type. Only user modules are inspected, and references suppressed
// at module, member or line level are skipped.
type ObjectVariableNotSet struct{}

func (ObjectVariableNotSet) Name() string { return CheckObjectVariableNotSet }

func (c ObjectVariableNotSet) Inspect(ctx context.Context, q *QueryBuilder) ([]InspectionResult, error) {
	sups, err := q.Suppressions()
	if err != nil {
		return nil, err
	}

	found := make(map[int64]*IdentifierReference)

	// Assignments whose let-coercion failed.
	modules, err := q.UserDeclarations(KindModule)
	if err != nil {
		return nil, err
	}
	for _, mod := range modules {
		key := ModuleKey{ProjectID: mod.ProjectID, Module: mod.Module}
		if sups.IsModuleIgnoring(key, c.Name()) {
			continue
		}
		failed, err := q.FailedLetCoercions(key)
		if err != nil {
			return nil, err
		}
		for _, ref := range failed {
			if ref.IsAssignment {
				found[ref.ID] = ref
			}
		}
	}

	// Non-Set assignments to object variables.
	grouped, err := q.IdentifierReferencesByModule()
	if err != nil {
		return nil, err
	}
	eval := &setEvaluator{q: q, decls: make(map[int64]*GraphDeclaration), types: make(map[string]bool)}
	for _, key := range slices.SortedFunc(maps.Keys(grouped), func(a, b ModuleKey) int { return strings.Compare(a.String(), b.String()) }) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod, err := q.ModuleDeclaration(key)
		if err != nil {
			return nil, err
		}
		if mod == nil || !mod.IsUserDefined || sups.IsModuleIgnoring(key, c.Name()) {
			continue
		}
		for _, ref := range grouped[key] {
			if ref.IsSetAssignment {
				continue
			}
			requires, err := eval.requiresSet(ref)
			if err != nil {
				return nil, err
			}
			if requires {
				found[ref.ID] = ref
			}
		}
	}

	var results []InspectionResult
	for _, ref := range found {
		if sups.IsIgnoringCheck(ref, c.Name()) {
			continue
		}
		results = append(results, InspectionResult{
			Check:       c.Name(),
			Description: fmt.Sprintf("Object variable '%s' is assigned without the 'Set' keyword.", ref.Name),
			Name:        ref.Name,
			Location:    ReferenceLocation(ref),
			ReferenceID: ref.ID,
		})
	}
	slices.SortFunc(results, compareResults)
	return results, nil
}

// setEvaluator decides whether an assignment target holds an object.
type setEvaluator struct {
	q     *QueryBuilder
	decls map[int64]*GraphDeclaration
	types map[string]bool
}

func (ev *setEvaluator) requiresSet(ref *IdentifierReference) (bool, error) {
	if !ref.IsAssignment || ref.DeclarationID == nil {
		return false, nil
	}
	decl, ok := ev.decls[*ref.DeclarationID]
	if !ok {
		var err error
		decl, err = ev.q.Declaration(*ref.DeclarationID)
		if err != nil {
			return false, err
		}
		ev.decls[*ref.DeclarationID] = decl
	}
	if decl == nil {
		return false, nil
	}
	if decl.IsObjectType {
		return true, nil
	}
	switch {
	case decl.TypeName == "":
		return false, nil
	case strings.EqualFold(decl.TypeName, "Object"):
		return true, nil
	}

	typeKey := ref.ProjectID + "\x00" + decl.TypeName
	isObject, ok := ev.types[typeKey]
	if !ok {
		t, err := ev.q.ResolveGlobal(ref.ProjectID, decl.TypeName)
		if err != nil {
			return false, err
		}
		isObject = t != nil && t.IsObjectType
		ev.types[typeKey] = isObject
	}
	return isObject, nil
}
