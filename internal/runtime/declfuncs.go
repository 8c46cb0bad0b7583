package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/refsync"
)

// declBuilder accumulates the declarations a collector script reports.
// Risor scripts cannot construct Go structs, so declare and
// declare_member accept maps and return integer handles that later
// members attach to.
type declBuilder struct {
	mu    sync.Mutex
	nodes []*declNode
	roots []int
}

type declNode struct {
	decl    refsync.Declaration
	members []int
}

func newDeclBuilder() *declBuilder {
	return &declBuilder{}
}

// add records d under parent (0 for top level) and returns its handle.
func (b *declBuilder) add(parent int, d refsync.Declaration) (int, error) {
	if d.Name == "" {
		return 0, fmt.Errorf("declaration without a name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if parent < 0 || parent > len(b.nodes) {
		return 0, fmt.Errorf("unknown parent %d", parent)
	}
	b.nodes = append(b.nodes, &declNode{decl: d})
	id := len(b.nodes)
	if parent == 0 {
		b.roots = append(b.roots, id)
	} else {
		p := b.nodes[parent-1]
		p.members = append(p.members, id)
	}
	return id, nil
}

// Len reports how many declarations have been recorded.
func (b *declBuilder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}

// tree assembles the recorded declarations in declaration order.
func (b *declBuilder) tree() []refsync.Declaration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assemble(b.roots)
}

func (b *declBuilder) assemble(ids []int) []refsync.Declaration {
	if len(ids) == 0 {
		return nil
	}
	out := make([]refsync.Declaration, 0, len(ids))
	for _, id := range ids {
		n := b.nodes[id-1]
		d := n.decl
		d.Members = b.assemble(n.members)
		out = append(out, d)
	}
	return out
}

// makeDeclareFn creates the "declare" host function.
//
// declare({"name", "kind", "type", "object", "global"}) → int
func makeDeclareFn(b *declBuilder) *object.Builtin {
	return object.NewBuiltin("declare", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("declare", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("declare: %v", err)
		}
		id, err := b.add(0, declarationFromMap(m))
		if err != nil {
			return object.Errorf("declare: %v", err)
		}
		return object.NewInt(int64(id))
	})
}

// makeDeclareMemberFn creates the "declare_member" host function.
//
// declare_member(parent_id, {"name", "kind", "type", "object"}) → int
func makeDeclareMemberFn(b *declBuilder) *object.Builtin {
	return object.NewBuiltin("declare_member", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("declare_member", 2, len(args))
		}
		parent, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("declare_member: parent: %v", err)
		}
		m, err := extractMap(args[1])
		if err != nil {
			return object.Errorf("declare_member: %v", err)
		}
		if parent < 1 {
			return object.Errorf("declare_member: unknown parent %d", parent)
		}
		id, err := b.add(int(parent), declarationFromMap(m))
		if err != nil {
			return object.Errorf("declare_member: %v", err)
		}
		return object.NewInt(int64(id))
	})
}

func declarationFromMap(m map[string]object.Object) refsync.Declaration {
	return refsync.Declaration{
		Name:         getString(m, "name"),
		Kind:         getStringDefault(m, "kind", refsync.KindVariable),
		TypeName:     getString(m, "type"),
		IsObjectType: getBool(m, "object"),
		IsGlobal:     getBool(m, "global"),
	}
}

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func getBool(m map[string]object.Object, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	if b, ok := v.(*object.Bool); ok {
		return b.Value()
	}
	return false
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
