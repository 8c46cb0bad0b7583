package refsync

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jward/refsync/internal/slogutil"
	"github.com/jward/refsync/internal/store"
)

// Metadata keys written after each pass.
const (
	metaLastPass     = "last_pass_id"
	metaLastPassTime = "last_pass_at"
)

// Engine owns the priority maps and the declaration graph for one set of
// host projects. Passes and module ingestion are serialized; queries may
// run concurrently with a pass.
type Engine struct {
	store     *store.Store
	collector Collector
	logger    *slog.Logger
	workers   int
	parallel  bool

	// mu serializes synchronization passes and user-module writes.
	mu     sync.Mutex
	maps   *priorityMaps
	last   atomic.Pointer[SyncResult]
	closed atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the size of the load worker pool. Values below 1 fall
// back to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithParallel controls parallel collection. When true (default), the load
// step runs collectors on a worker pool with a single goroutine committing
// batches to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath. Priority
// maps persisted by an earlier Engine on the same database are restored,
// so the first pass only does incremental work.
func New(dbPath string, collector Collector, opts ...Option) (*Engine, error) {
	if collector == nil {
		return nil, fmt.Errorf("refsync: nil collector")
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("refsync: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("refsync: migrate: %w", err)
	}

	e := &Engine{
		store:     s,
		collector: collector,
		logger:    slogutil.NewDiscardLogger(),
		parallel:  true,
		maps:      newPriorityMaps(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}

	if err := e.restore(); err != nil {
		s.Close()
		return nil, fmt.Errorf("refsync: restore: %w", err)
	}
	return e, nil
}

// Close disposes of the Engine. It waits for an active pass to finish.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store, engine: e}
}

// LastSync returns the result of the most recent pass, or nil before the
// first one.
func (e *Engine) LastSync() *SyncResult {
	return e.last.Load()
}

// ProjectReferences returns a snapshot of the priority maps ordered by
// library identity.
func (e *Engine) ProjectReferences() []PriorityMap {
	return e.maps.snapshot()
}

// restore rebuilds the priority maps from the database. A map counts as
// loaded when its library row exists. Library rows no map claims are
// purged.
func (e *Engine) restore() error {
	entries, err := e.store.LoadPriorities()
	if err != nil {
		return err
	}
	for i := 0; i < len(entries); {
		identity := entries[i].Identity
		m := &PriorityMap{Identity: identity, Priorities: make(map[string]int)}
		for ; i < len(entries) && entries[i].Identity == identity; i++ {
			m.Priorities[entries[i].ProjectID] = entries[i].Priority
		}
		lib, err := e.store.LibraryByIdentity(identity)
		if err != nil {
			return err
		}
		if lib != nil {
			m.IsLoaded = true
			m.Reference = Reference{Name: lib.Name, FullPath: lib.Path}
		} else {
			m.Reference = referenceFromIdentity(identity)
		}
		if err := e.maps.add(m); err != nil {
			e.logger.Error("priority map not restored", "identity", identity, "error", err)
		}
	}

	libs, err := e.store.Libraries()
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if _, ok := e.maps.get(lib.Identity); ok {
			continue
		}
		fault := newSyncError(CodeConsistencyFault, lib.Identity, Reference{Name: lib.Name}, "library loaded but unreferenced", nil)
		e.logger.Error("purging orphaned library", "identity", lib.Identity, "error", fault)
		if err := e.store.DeleteLibraryData(lib.ID); err != nil {
			return err
		}
	}
	return nil
}

// referenceFromIdentity recovers a handle from a derived "name;path"
// identity. Identities taken from host project IDs yield a name only.
func referenceFromIdentity(identity string) Reference {
	name, path, _ := strings.Cut(identity, ";")
	return Reference{Name: name, FullPath: path}
}

// SyncResult describes one synchronization pass.
type SyncResult struct {
	PassID string `json:"pass_id"`
	// AnyLoaded is true when at least one library was requested for
	// loading, even if its collection failed.
	AnyLoaded bool `json:"any_loaded"`
	// Loaded lists identities whose declarations were added.
	Loaded []string `json:"loaded"`
	// Unloaded lists identities whose priority map was discarded this
	// pass, including libraries whose load failed.
	Unloaded []string `json:"unloaded"`
	// Failed holds per-library load failures.
	Failed []LoadResult `json:"failed,omitempty"`
	// AffectedModules are user modules whose reference bindings changed.
	AffectedModules []ModuleKey   `json:"affected_modules,omitempty"`
	Cancelled       bool          `json:"cancelled,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Synchronize reconciles the projects' current references with the
// libraries loaded in the graph.
//
// Each project's references are ranked 1..n in listed order; broken
// references are skipped. Libraries not yet loaded are collected (in
// parallel unless WithParallel(false)) and committed one library per
// transaction. A failed collection leaves no declarations and is reported
// in the result; the pass continues. Priority entries for references the
// host no longer reports are removed, and a library whose last entry
// goes is unloaded.
//
// ctx is checked before each collection and before the unload phase. On
// cancellation the partial result is returned with an error for which
// IsCancelled is true.
func (e *Engine) Synchronize(ctx context.Context, projects []Project) (SyncResult, error) {
	if e.closed.Load() {
		return SyncResult{}, ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return SyncResult{}, ErrClosed
	}

	start := time.Now()
	res := SyncResult{PassID: uuid.NewString()}
	log := e.logger.With("pass", res.PassID)
	log.Debug("sync pass started", "projects", len(projects))

	// Rank references and pick the libraries to load.
	plan := e.planLoads(projects, log)
	res.AnyLoaded = len(plan.loads) > 0

	affected := make(map[ModuleKey]bool)
	rebindNames := make(map[string]bool)

	// Collect and commit.
	var cancelled []string
	if len(plan.loads) > 0 {
		for _, out := range e.loadLibraries(ctx, plan.loads, log) {
			switch {
			case !out.started:
				e.maps.setLoaded(out.item.identity, false)
				cancelled = append(cancelled, out.item.identity)
			case out.err != nil:
				// The map goes with the failed load; the next pass retries.
				e.maps.delete(out.item.identity)
				res.Failed = append(res.Failed, LoadResult{
					Reference: out.item.ref,
					Identity:  out.item.identity,
					Err:       out.err,
				})
				res.Unloaded = append(res.Unloaded, out.item.identity)
			default:
				res.Loaded = append(res.Loaded, out.item.identity)
				for _, name := range out.globals {
					rebindNames[name] = true
				}
			}
		}
	}

	// A reordered library may now win or lose same-named globals.
	for _, identity := range plan.moved {
		if err := e.libraryGlobals(identity, rebindNames); err != nil {
			log.Warn("reordered library not rebound", "identity", identity, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		res.Cancelled = true
		log.Info("sync pass cancelled", "loaded", len(res.Loaded), "not_started", len(cancelled))
		e.rebind(rebindNames, affected, log)
		e.finish(&res, affected, start, log)
		return res, newSyncError(CodeCancelled, "", Reference{}, "synchronization cancelled", err)
	}

	// Drop stale entries and unload libraries nobody references.
	for _, entry := range e.maps.stale(plan.seen) {
		if e.unloadEntry(entry, affected, rebindNames, log) {
			res.Unloaded = append(res.Unloaded, entry.identity)
		}
	}

	e.rebind(rebindNames, affected, log)
	e.finish(&res, affected, start, log)
	return res, nil
}

// finish sorts the result, persists bookkeeping and publishes the result.
func (e *Engine) finish(res *SyncResult, affected map[ModuleKey]bool, start time.Time, log *slog.Logger) {
	slices.Sort(res.Loaded)
	slices.Sort(res.Unloaded)
	slices.SortFunc(res.Failed, func(a, b LoadResult) int { return strings.Compare(a.Identity, b.Identity) })
	for k := range affected {
		res.AffectedModules = append(res.AffectedModules, k)
	}
	slices.SortFunc(res.AffectedModules, func(a, b ModuleKey) int { return strings.Compare(a.String(), b.String()) })

	if err := e.store.SavePriorities(e.maps.entries()); err != nil {
		log.Error("priorities not persisted", "error", err)
	}
	if err := e.store.SetMetadata(metaLastPass, res.PassID); err != nil {
		log.Warn("pass id not persisted", "error", err)
	}
	if err := e.store.SetMetadata(metaLastPassTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn("pass time not persisted", "error", err)
	}

	res.Duration = time.Since(start)
	published := *res
	e.last.Store(&published)
	log.Info("sync pass finished",
		"loaded", len(res.Loaded),
		"unloaded", len(res.Unloaded),
		"failed", len(res.Failed),
		"affected_modules", len(res.AffectedModules),
		"duration", res.Duration,
	)
}

// loadPlan is the outcome of ranking every project's references.
type loadPlan struct {
	loads []loadItem
	// moved lists loaded libraries whose priority changed for some project.
	moved []string
	seen  map[mapEntry]bool
}

func (e *Engine) planLoads(projects []Project, log *slog.Logger) loadPlan {
	plan := loadPlan{seen: make(map[mapEntry]bool)}
	resolver := &identityResolver{projects: projects, logger: log}
	for _, p := range projects {
		pid := projectID(p)
		// Ranked against one snapshot; the host may edit the live list.
		refs := p.References()
		for i, ref := range refs {
			priority := i + 1
			if ref.IsBroken {
				log.Debug("skipping broken reference", "project", pid, "reference", ref.Name, "priority", priority)
				continue
			}
			identity := resolver.resolve(ref)
			entry := mapEntry{identity: identity, projectID: pid}
			if plan.seen[entry] {
				log.Debug("duplicate reference keeps first priority", "entry", entry, "priority", priority)
				continue
			}
			plan.seen[entry] = true
			needsLoad, moved := e.maps.record(identity, ref, pid, priority)
			switch {
			case needsLoad:
				plan.loads = append(plan.loads, loadItem{identity: identity, ref: ref})
			case moved:
				plan.moved = append(plan.moved, identity)
			}
		}
	}
	return plan
}

// unloadEntry removes one stale priority entry, unloading the library if
// the entry was its last. It reports whether the library was unloaded.
func (e *Engine) unloadEntry(entry mapEntry, affected map[ModuleKey]bool, rebindNames map[string]bool, log *slog.Logger) bool {
	m, ok := e.maps.get(entry.identity)
	if !ok {
		fault := newSyncError(CodeConsistencyFault, entry.identity, Reference{}, "unload requested for untracked reference", nil)
		log.Warn("unload skipped", "entry", entry, "error", fault)
		return false
	}
	if !m.IsLoaded {
		// Never collected, so nothing is in the graph.
		if e.maps.removeEntry(entry.identity, entry.projectID) {
			log.Debug("dropped reference that was never loaded", "identity", entry.identity)
		}
		return false
	}
	if len(m.Priorities) > 1 {
		e.maps.removeEntry(entry.identity, entry.projectID)
		// The dropping project may have bound to the library's globals.
		if err := e.libraryGlobals(entry.identity, rebindNames); err != nil {
			log.Warn("dropped reference not rebound", "entry", entry, "error", err)
		}
		log.Debug("reference dropped, library still in use", "entry", entry, "remaining", len(m.Priorities)-1)
		return false
	}

	lib, err := e.store.LibraryByIdentity(entry.identity)
	if err != nil {
		log.Error("unload skipped", "identity", entry.identity, "error", err)
		return false
	}
	if lib != nil {
		modules, err := e.store.ModulesReferencingLibrary(lib.ID)
		if err != nil {
			log.Error("unload skipped", "identity", entry.identity, "error", err)
			return false
		}
		if err := e.libraryGlobals(entry.identity, rebindNames); err != nil {
			log.Error("unload skipped", "identity", entry.identity, "error", err)
			return false
		}
		if err := e.store.DeleteLibraryData(lib.ID); err != nil {
			log.Error("unload failed", "identity", entry.identity, "error", err)
			return false
		}
		for _, k := range modules {
			affected[k] = true
		}
	} else {
		fault := newSyncError(CodeConsistencyFault, entry.identity, m.Reference, "loaded library missing from graph", nil)
		log.Warn("unloading library with no declarations", "identity", entry.identity, "error", fault)
	}
	e.maps.removeEntry(entry.identity, entry.projectID)
	log.Info("library unloaded", "identity", entry.identity, "reference", m.Reference.Name)
	return true
}

// libraryGlobals adds the names of the library's global declarations to
// names. A library that is not in the graph adds nothing.
func (e *Engine) libraryGlobals(identity string, names map[string]bool) error {
	lib, err := e.store.LibraryByIdentity(identity)
	if err != nil || lib == nil {
		return err
	}
	decls, err := e.store.DeclarationsByLibrary(lib.ID)
	if err != nil {
		return err
	}
	for _, d := range decls {
		if d.IsGlobal {
			names[d.Name] = true
		}
	}
	return nil
}

// rebind re-resolves references that are unbound or that carry one of
// names, recording the modules whose bindings changed.
func (e *Engine) rebind(names map[string]bool, affected map[ModuleKey]bool, log *slog.Logger) {
	refs, err := e.store.UnresolvedReferences()
	if err != nil {
		log.Error("rebind skipped", "error", err)
		return
	}
	if len(names) > 0 {
		named, err := e.store.IdentifierReferencesNamed(slices.Sorted(maps.Keys(names))...)
		if err != nil {
			log.Error("rebind skipped", "error", err)
			return
		}
		refs = append(refs, named...)
	}

	b := &binder{ds: e.store, maps: e.maps}
	done := make(map[int64]bool, len(refs))
	for _, ref := range refs {
		if done[ref.ID] {
			continue
		}
		done[ref.ID] = true
		target, err := b.bindStored(ref)
		if err != nil {
			log.Warn("reference not rebound", "reference", ref.Name, "module", ref.Module, "error", err)
			continue
		}
		if sameTarget(ref.DeclarationID, target) {
			continue
		}
		if err := e.store.BindReference(ref.ID, target); err != nil {
			log.Warn("reference not rebound", "reference", ref.Name, "module", ref.Module, "error", err)
			continue
		}
		affected[ModuleKey{ProjectID: ref.ProjectID, Module: ref.Module}] = true
	}
}

func sameTarget(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ResolveGlobal returns the declaration a global name binds to inside
// projectID: the project's own user declarations win, then libraries the
// project references in ascending priority order. It returns nil when
// nothing matches.
func (e *Engine) ResolveGlobal(projectID, name string) (*GraphDeclaration, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	b := &binder{ds: e.store, maps: e.maps}
	return b.global(projectID, name)
}
