package runtime

import (
	"context"
	"go/token"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// parsedFile is one library source file parsed during a collection.
type parsedFile struct {
	path string
	src  []byte
	lang *sitter.Language
}

// parsedFiles maps a tree's root node to the file it was parsed from.
// smacker/go-tree-sitter has no Node.Tree(), so node_text and query walk a
// node up to its root and look the root up here.
type parsedFiles struct {
	mu    sync.RWMutex
	files map[uintptr]parsedFile
}

func newParsedFiles() *parsedFiles {
	return &parsedFiles{files: make(map[uintptr]parsedFile)}
}

func (p *parsedFiles) add(tree *sitter.Tree, f parsedFile) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	p.mu.Lock()
	p.files[key] = f
	p.mu.Unlock()
}

func (p *parsedFiles) lookup(node *sitter.Node) (parsedFile, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.files[uintptr(unsafe.Pointer(node))]
	return f, ok
}

// stringArg unwraps a Risor string argument. The second result is a
// script error when arg is not a string.
func stringArg(fn, what string, arg object.Object) (string, object.Object) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, object.Object) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok || node == nil {
		return nil, object.Errorf("%s: expected a node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// makeParseFn creates "parse", which reads a library source file and
// returns its syntax tree.
//
// parse(path, language) → Tree
func makeParseFn(files *parsedFiles) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse", 2, len(args))
		}
		path, errObj := stringArg("parse", "path", args[0])
		if errObj != nil {
			return errObj
		}
		langName, errObj := stringArg("parse", "language", args[1])
		if errObj != nil {
			return errObj
		}
		lang, ok := ParserForLanguage(langName)
		if !ok {
			return object.Errorf("parse: unsupported language %q", langName)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return object.Errorf("parse %s: %v", path, err)
		}
		files.add(tree, parsedFile{path: path, src: src, lang: lang})

		proxy, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}
		return proxy
	})
}

// makeNodeTextFn creates "node_text". Risor cannot hand a string to
// node.Content([]byte), so the source bytes are looked up here.
//
// node_text(node) → string
func makeNodeTextFn(files *parsedFiles) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		f, ok := files.lookup(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed file")
		}
		return object.NewString(node.Content(f.src))
	})
}

// makeQueryFn creates "query". Each match is a map from capture name to
// node.
//
// query(pattern, node) → [{capture: Node}]
func makeQueryFn(files *parsedFiles) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		f, ok := files.lookup(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed file")
		}

		q, err := sitter.NewQuery([]byte(pattern), f.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, f.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// makeNodeChildFn creates "node_child". A missing field is Risor nil
// rather than a proxied nil pointer.
//
// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: %v", err)
		}
		return p
	})
}

// makeExportedFn creates "exported", which reports whether a Go
// identifier is visible outside its package.
//
// exported(name) → bool
func makeExportedFn() *object.Builtin {
	return object.NewBuiltin("exported", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("exported", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("exported: %v", err)
		}
		return object.NewBool(token.IsExported(name))
	})
}

// logObject is the script's "log" global.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }
func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
