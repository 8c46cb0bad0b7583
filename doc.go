// Package refsync keeps a declaration graph in step with the external
// libraries a set of host projects reference.
//
// A host project (a workbook, an add-in, a source tree) lists references
// to libraries. Each library contributes declarations: classes, members,
// constants and so on. refsync loads every referenced library once,
// shares it across the projects that reference it, and unloads it when
// the last reference goes away. User source modules bind their
// identifier references against that graph, and inspections consume it.
//
// # Synchronization
//
// [Engine.Synchronize] runs one pass:
//
//  1. Plan: rank each project's references 1..n and record them in the
//     library's priority map. Libraries that are not yet loaded are
//     queued.
//  2. Load: collect the queued libraries through the [Collector] (in
//     parallel by default) and commit each library in its own
//     transaction. A failed collection leaves nothing behind and is
//     reported in [SyncResult.Failed].
//  3. Reconcile: drop priority entries no project listed this pass and
//     unload libraries no project references any more.
//  4. Rebind: re-resolve user references whose best binding may have
//     changed.
//
// Passes are serialized. Cancelling the context stops the pass at the
// next library boundary; the result reports what was done.
//
// # Usage
//
//	collector := refsync.ExtCollector{".toml": manifest.Collector{}}
//	e, err := refsync.New("refsync.db", collector)
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Synchronize(ctx, projects)
//	key, err := e.AddUserModule(ctx, module)
//	results, err := refsync.RunInspections(ctx, e.Query(), refsync.ObjectVariableNotSet{})
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads the graph:
//
//   - [QueryBuilder.Libraries] and [QueryBuilder.LibraryDeclarations] list
//     what is loaded.
//   - [QueryBuilder.ResolveGlobal] resolves a name for a project in
//     reference priority order.
//   - [QueryBuilder.ReferencesTo] finds the use-sites of a declaration.
//   - [QueryBuilder.SearchDeclarations] and [QueryBuilder.Declarations]
//     filter, sort and page over every declaration.
//
// # Collectors
//
// A [Collector] turns one [Reference] into declarations. The cmd/refsync
// binary wires two: TOML library manifests (internal/manifest) and Go
// source files, whose exported API is read by a Risor script over a
// tree-sitter parse (internal/runtime, scripts/collect).
package refsync
