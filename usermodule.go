package refsync

import (
	"context"
	"fmt"

	"github.com/jward/refsync/internal/store"
)

// AllChecks in an ignore list suppresses every check.
const AllChecks = "*"

// UserModule is the parsed skeleton of one user source module, as handed
// over by the parser.
type UserModule struct {
	ProjectID    string            `json:"project" yaml:"-"`
	Name         string            `json:"name" yaml:"name"`
	Declarations []UserDeclaration `json:"declarations,omitempty" yaml:"declarations"`
	References   []UserReference   `json:"references,omitempty" yaml:"references"`
	// Ignores lists checks suppressed for the whole module.
	Ignores []string `json:"ignores,omitempty" yaml:"ignores"`
}

// UserDeclaration is a symbol declared in user source. Scope names the
// enclosing member; empty means module level.
type UserDeclaration struct {
	Name         string   `json:"name" yaml:"name"`
	Kind         string   `json:"kind" yaml:"kind"`
	TypeName     string   `json:"type,omitempty" yaml:"type"`
	IsObjectType bool     `json:"object,omitempty" yaml:"object"`
	IsGlobal     bool     `json:"global,omitempty" yaml:"global"`
	Scope        string   `json:"scope,omitempty" yaml:"scope"`
	Line         int      `json:"line,omitempty" yaml:"line"`
	Col          int      `json:"col,omitempty" yaml:"col"`
	Ignores      []string `json:"ignores,omitempty" yaml:"ignores"`
}

// UserReference is one use-site in user source.
type UserReference struct {
	Name              string   `json:"name" yaml:"name"`
	Scope             string   `json:"scope,omitempty" yaml:"scope"`
	Line              int      `json:"line" yaml:"line"`
	Col               int      `json:"col,omitempty" yaml:"col"`
	IsAssignment      bool     `json:"assignment,omitempty" yaml:"assignment"`
	IsSetAssignment   bool     `json:"set,omitempty" yaml:"set"`
	FailedLetCoercion bool     `json:"failed_let_coercion,omitempty" yaml:"failed_let_coercion"`
	Ignores           []string `json:"ignores,omitempty" yaml:"ignores"`
}

// AddUserModule replaces everything previously stored for the module with
// m, binding each reference to its declaration. The replacement is one
// transaction.
func (e *Engine) AddUserModule(ctx context.Context, m UserModule) (ModuleKey, error) {
	key := ModuleKey{ProjectID: m.ProjectID, Module: m.Name}
	if e.closed.Load() {
		return key, ErrClosed
	}
	if m.ProjectID == "" || m.Name == "" {
		return key, fmt.Errorf("add module: project and module name are required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Names other modules may bind to, before and after the replacement.
	names, err := e.moduleGlobals(key)
	if err != nil {
		return key, fmt.Errorf("add module %s: %w", key, err)
	}
	names[m.Name] = true
	for _, d := range m.Declarations {
		if d.IsGlobal {
			names[d.Name] = true
		}
	}

	batch := store.NewModuleBatch(e.store, key)
	modID, err := batch.InsertDeclaration(&store.Declaration{
		ProjectID:     m.ProjectID,
		Module:        m.Name,
		Name:          m.Name,
		Kind:          KindModule,
		IsUserDefined: true,
		SignatureHash: store.ComputeSignatureHash(m.Name, KindModule, "", m.ProjectID, false, false),
	})
	if err != nil {
		return key, fmt.Errorf("add module %s: %w", key, err)
	}
	if err := addSuppressions(batch, key, nil, 0, m.Ignores); err != nil {
		return key, fmt.Errorf("add module %s: %w", key, err)
	}

	scopes := map[string]int64{"": modID}
	for _, d := range m.Declarations {
		parent, ok := scopes[d.Scope]
		if !ok {
			return key, fmt.Errorf("add module %s: declaration %q: unknown scope %q", key, d.Name, d.Scope)
		}
		kind := d.Kind
		if kind == "" {
			kind = KindVariable
		}
		id, err := batch.InsertDeclaration(&store.Declaration{
			ProjectID:           m.ProjectID,
			Module:              m.Name,
			Name:                d.Name,
			Kind:                kind,
			TypeName:            d.TypeName,
			IsObjectType:        d.IsObjectType,
			IsGlobal:            d.IsGlobal,
			IsUserDefined:       true,
			SignatureHash:       store.ComputeSignatureHash(d.Name, kind, d.TypeName, m.Name+"."+d.Scope, d.IsObjectType, d.IsGlobal),
			StartLine:           d.Line,
			StartCol:            d.Col,
			EndLine:             d.Line,
			EndCol:              d.Col + len(d.Name),
			ParentDeclarationID: &parent,
		})
		if err != nil {
			return key, fmt.Errorf("add module %s: %w", key, err)
		}
		if _, dup := scopes[d.Name]; !dup {
			scopes[d.Name] = id
		}
		if err := addSuppressions(batch, key, &id, 0, d.Ignores); err != nil {
			return key, fmt.Errorf("add module %s: %w", key, err)
		}
	}

	b := &binder{ds: batch, maps: e.maps}
	for _, r := range m.References {
		if err := ctx.Err(); err != nil {
			return key, err
		}
		scopeID, ok := scopes[r.Scope]
		if !ok {
			return key, fmt.Errorf("add module %s: reference %q: unknown scope %q", key, r.Name, r.Scope)
		}
		target, err := b.bind(m.ProjectID, m.Name, &modID, &scopeID, r.Name)
		if err != nil {
			return key, fmt.Errorf("add module %s: bind %q: %w", key, r.Name, err)
		}
		if _, err := batch.InsertIdentifierReference(&store.IdentifierReference{
			ProjectID:          m.ProjectID,
			Module:             m.Name,
			DeclarationID:      target,
			ScopeDeclarationID: &scopeID,
			Name:               r.Name,
			IsAssignment:       r.IsAssignment,
			IsSetAssignment:    r.IsSetAssignment,
			FailedLetCoercion:  r.FailedLetCoercion,
			StartLine:          r.Line,
			StartCol:           r.Col,
			EndLine:            r.Line,
			EndCol:             r.Col + len(r.Name),
		}); err != nil {
			return key, fmt.Errorf("add module %s: %w", key, err)
		}
		// Without a line the ignore widens to the enclosing scope.
		var ignoreScope *int64
		if r.Line == 0 {
			ignoreScope = &scopeID
		}
		if err := addSuppressions(batch, key, ignoreScope, r.Line, r.Ignores); err != nil {
			return key, fmt.Errorf("add module %s: %w", key, err)
		}
	}

	if err := e.store.CommitBatch(batch); err != nil {
		return key, fmt.Errorf("add module %s: %w", key, err)
	}
	affected := make(map[ModuleKey]bool)
	e.rebind(names, affected, e.logger)
	e.logger.Debug("user module stored", "module", key.String(), "declarations", len(m.Declarations)+1, "references", len(m.References), "rebound_modules", len(affected))
	return key, nil
}

// RemoveUserModule deletes a module's declarations, references and
// suppressions. References elsewhere that pointed into it are re-resolved
// and stay unresolved when nothing else declares the name.
func (e *Engine) RemoveUserModule(key ModuleKey) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	names, err := e.moduleGlobals(key)
	if err != nil {
		return fmt.Errorf("remove module %s: %w", key, err)
	}
	if err := e.store.DeleteModuleData(key.ProjectID, key.Module); err != nil {
		return err
	}
	affected := make(map[ModuleKey]bool)
	e.rebind(names, affected, e.logger)
	e.logger.Debug("user module removed", "module", key.String(), "rebound_modules", len(affected))
	return nil
}

// moduleGlobals returns the stored names of key that other modules can
// bind to: the module itself and its global declarations.
func (e *Engine) moduleGlobals(key ModuleKey) (map[string]bool, error) {
	decls, err := e.store.DeclarationsByModule(key.ProjectID, key.Module)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{key.Module: true}
	for _, d := range decls {
		if d.IsGlobal || d.Kind == KindModule {
			names[d.Name] = true
		}
	}
	return names, nil
}

func addSuppressions(ds store.DataStore, key ModuleKey, scopeID *int64, line int, checks []string) error {
	for _, check := range checks {
		if check == AllChecks {
			check = ""
		}
		if _, err := ds.InsertSuppression(&store.Suppression{
			ProjectID:          key.ProjectID,
			Module:             key.Module,
			ScopeDeclarationID: scopeID,
			Line:               line,
			Check:              check,
		}); err != nil {
			return err
		}
	}
	return nil
}
