package runtime

import (
	"context"
	"fmt"

	"github.com/jward/refsync"
)

// ScriptCollector collects a library's declarations by running the
// collector script for the language of the referenced file. The script
// sees the reference as ref_name and ref_path and reports declarations
// through declare and declare_member.
type ScriptCollector struct {
	rt *Runtime
}

var _ refsync.Collector = (*ScriptCollector)(nil)

// NewScriptCollector returns a collector backed by rt.
func NewScriptCollector(rt *Runtime) *ScriptCollector {
	return &ScriptCollector{rt: rt}
}

// Collect runs collect/<language>.risor against ref.FullPath. Each call
// gets its own source store, so collections may run concurrently.
func (c *ScriptCollector) Collect(ctx context.Context, ref refsync.Reference) ([]refsync.Declaration, error) {
	lang, ok := LanguageForFile(ref.FullPath)
	if !ok {
		return nil, fmt.Errorf("runtime: no collector script for %q", ref.FullPath)
	}
	path := CollectScriptPath(lang)
	src, err := c.rt.LoadScript(path)
	if err != nil {
		return nil, err
	}

	b := newDeclBuilder()
	globals := map[string]any{
		"ref_name":       ref.Name,
		"ref_path":       ref.FullPath,
		"declare":        makeDeclareFn(b),
		"declare_member": makeDeclareMemberFn(b),
	}
	if err := c.rt.eval(ctx, newParsedFiles(), src, path, globals); err != nil {
		return nil, err
	}
	c.rt.logger.Debug("library collected", "library", ref.Name, "script", path, "declarations", b.Len())
	return b.tree(), nil
}
