package refsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jward/refsync/internal/store"
)

// loadItem is one library requested for loading in a pass.
type loadItem struct {
	identity string
	ref      Reference
}

// loadOutcome is what happened to one loadItem. started is false when
// the pass was cancelled before its collection began or while the
// collector was waiting on the cancelled context.
type loadOutcome struct {
	item    loadItem
	started bool
	batch   *store.BatchedStore
	count   int
	globals []string
	err     error
}

// loadLibraries runs the load step as a three-phase pipeline:
//
//	Phase A (serial):   the load set, already planned by the caller.
//	Phase B (parallel): collect each library into its own BatchedStore.
//	Phase C (serial):   commit batches to SQLite, one transaction each.
//
// With WithParallel(false) both phases run on the calling goroutine.
func (e *Engine) loadLibraries(ctx context.Context, items []loadItem, log *slog.Logger) []loadOutcome {
	if !e.parallel || len(items) == 1 {
		outcomes := make([]loadOutcome, 0, len(items))
		for _, item := range items {
			out := e.collectLibrary(ctx, item)
			outcomes = append(outcomes, e.commitLibrary(out, log))
		}
		return outcomes
	}

	// ---- Phase B: Parallel collection ----
	numWorkers := min(e.workers, len(items))
	workCh := make(chan loadItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	resultCh := make(chan loadOutcome, len(items))
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				resultCh <- e.collectLibrary(ctx, item)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	outcomes := make([]loadOutcome, 0, len(items))
	for out := range resultCh {
		outcomes = append(outcomes, e.commitLibrary(out, log))
	}
	return outcomes
}

// collectLibrary runs the collector for one library and stages its
// declarations under a root library declaration. A panicking collector is
// a load failure like any other.
func (e *Engine) collectLibrary(ctx context.Context, item loadItem) (out loadOutcome) {
	out.item = item
	if ctx.Err() != nil {
		return out
	}
	out.started = true
	defer func() {
		if r := recover(); r != nil {
			out.batch = nil
			out.err = fmt.Errorf("collector panic: %v", r)
		}
	}()

	decls, err := e.collector.Collect(ctx, item.ref)
	if err != nil {
		// A collector that gave up because the pass was cancelled did not
		// load anything; the library is retried next pass.
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			out.started = false
			return out
		}
		out.err = err
		return out
	}

	ref := item.ref
	batch := store.NewLibraryBatch(e.store, &store.Library{Identity: item.identity, Name: ref.Name, Path: ref.FullPath})
	rootID, err := batch.InsertDeclaration(&store.Declaration{
		Module:        ref.Name,
		Name:          ref.Name,
		Kind:          KindLibrary,
		SignatureHash: store.ComputeSignatureHash(ref.Name, KindLibrary, "", "", false, false),
	})
	if err != nil {
		out.err = err
		return out
	}
	n, err := stageDeclarations(batch, ref.Name, &rootID, ref.Name, decls)
	if err != nil {
		out.err = err
		return out
	}
	out.batch = batch
	out.count = n
	for _, d := range decls {
		if d.IsGlobal {
			out.globals = append(out.globals, d.Name)
		}
	}
	return out
}

// commitLibrary commits a collected batch and converts failures into
// load errors.
func (e *Engine) commitLibrary(out loadOutcome, log *slog.Logger) loadOutcome {
	if !out.started {
		return out
	}
	ref := out.item.ref
	if out.err == nil {
		if err := e.store.CommitBatch(out.batch); err != nil {
			out.err = fmt.Errorf("commit: %w", err)
		}
	}
	out.batch = nil
	if out.err != nil {
		out.err = newSyncError(CodeLoadFailed, out.item.identity, ref, "declarations not collected", out.err)
		log.Warn(fmt.Sprintf("types were not loaded from referenced library '%s'", ref.Name), "identity", out.item.identity)
		log.Error("library load failed", "identity", out.item.identity, "error", out.err)
		return out
	}
	log.Debug("library loaded", "identity", out.item.identity, "declarations", out.count)
	return out
}
