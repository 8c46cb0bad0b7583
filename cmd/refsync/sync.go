package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/refsync"
	"github.com/jward/refsync/internal/workspace"
)

var syncCmd = &cobra.Command{
	Use:   "sync <workspace.yaml>",
	Short: "Synchronize the declaration graph with a workspace",
	Long:  "Loads the libraries the workspace's projects reference, unloads the ones no project references any more, and stores every user module.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [workspace.yaml]",
	Short: "Run inspections over the user modules",
	Long:  "Runs every inspection against the declaration graph. With a workspace argument the graph is synchronized first.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	e, err := openEngine(false)
	if err != nil {
		return outputError(cmd, "sync", err)
	}
	defer e.Close()

	res, err := syncWorkspace(ctx, e, args[0])
	if err != nil {
		return outputError(cmd, "sync", err)
	}
	return outputResult(cmd, CLIResult{Command: "sync", Results: res})
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	e, err := openEngine(len(args) == 0)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	defer e.Close()

	if len(args) == 1 {
		if _, err := syncWorkspace(ctx, e, args[0]); err != nil {
			return outputError(cmd, "inspect", err)
		}
	}

	results, err := refsync.RunInspections(ctx, e.Query(), refsync.ObjectVariableNotSet{})
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	out := make([]CLIInspection, 0, len(results))
	for _, r := range results {
		out = append(out, CLIInspection{
			Check:       r.Check,
			Description: r.Description,
			Location:    locationToCLI(r.Location, r.Name, nil),
		})
	}
	total := len(out)
	return outputResult(cmd, CLIResult{Command: "inspect", Results: out, TotalCount: &total})
}

// syncWorkspace runs one pass over the workspace's projects, then replaces
// the stored user modules with the workspace's. Modules stored earlier
// that the workspace no longer lists are removed.
func syncWorkspace(ctx context.Context, e *refsync.Engine, path string) (CLISyncResult, error) {
	start := time.Now()
	ws, err := workspace.Load(path)
	if err != nil {
		return CLISyncResult{}, err
	}

	res, err := e.Synchronize(ctx, ws.EngineProjects())
	out := CLISyncResult{
		PassID:          res.PassID,
		Loaded:          nonNil(res.Loaded),
		Unloaded:        nonNil(res.Unloaded),
		Failed:          []CLIFailure{},
		AffectedModules: len(res.AffectedModules),
		Cancelled:       res.Cancelled,
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, CLIFailure{Identity: f.Identity, Reference: f.Reference.Name, Error: f.Err.Error()})
	}
	if err != nil {
		if refsync.IsCancelled(err) || errors.Is(err, context.Canceled) {
			logger.Warn("synchronization cancelled", "pass", res.PassID)
			out.DurationMS = time.Since(start).Milliseconds()
			return out, nil
		}
		return out, fmt.Errorf("synchronizing: %w", err)
	}

	modules := ws.UserModules()
	keep := make(map[refsync.ModuleKey]bool, len(modules))
	for _, m := range modules {
		key, err := e.AddUserModule(ctx, m)
		if err != nil {
			return out, err
		}
		keep[key] = true
	}
	out.Modules = len(modules)

	stored, err := e.Query().UserDeclarations(refsync.KindModule)
	if err != nil {
		return out, err
	}
	for _, d := range stored {
		key := refsync.ModuleKey{ProjectID: d.ProjectID, Module: d.Module}
		if keep[key] {
			continue
		}
		if err := e.RemoveUserModule(key); err != nil {
			return out, fmt.Errorf("removing module %s: %w", key, err)
		}
		logger.Info("user module removed", "module", key.String())
		out.RemovedModules++
	}

	out.DurationMS = time.Since(start).Milliseconds()
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
