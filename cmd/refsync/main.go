package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/refsync"
	"github.com/jward/refsync/internal/config"
	"github.com/jward/refsync/internal/manifest"
	"github.com/jward/refsync/internal/runtime"
	"github.com/jward/refsync/internal/slogutil"
	"github.com/jward/refsync/scripts"
)

var (
	flagDB         string
	flagFormat     string
	flagConfig     string
	flagVerbose    int
	flagQuiet      bool
	flagScriptsDir string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// settings and logger are populated before any command runs.
var (
	settings *config.Config
	logger   *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "refsync",
	Short:         "Keep a declaration graph in step with project references",
	Long:          "refsync loads the libraries host projects reference into a SQLite declaration graph, binds user modules against it, and runs inspections.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return loadSettings(cmd)
	},
	// No Run, so help is printed by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .refsync/refsync.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .refsync/config.json relative to repo root)")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress all logging")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load collector scripts from disk path instead of embedded")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queryCmd)
}

// loadSettings reads the config file and builds the logger. Flags win
// over the file; -v and --quiet win over logging.level.
func loadSettings(cmd *cobra.Command) error {
	var err error
	if flagConfig != "" {
		settings, err = config.LoadFile(flagConfig)
	} else {
		settings, err = config.LoadConfig(repoRoot())
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagScriptsDir != "" {
		settings.ScriptsDir = flagScriptsDir
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	level := slogutil.LevelFromString(settings.Logging.Level)
	if flagVerbose > 0 || flagQuiet {
		level = slogutil.LevelFromVerbosity(flagVerbose, flagQuiet)
	}
	logger = slogutil.NewLogger(cmd.ErrOrStderr(), level, settings.Logging.Format)
	return nil
}

// newCollector wires the library collectors: TOML manifests and Go source
// read through the embedded (or --scripts-dir) collector scripts.
func newCollector(cfg *config.Config, log *slog.Logger) refsync.Collector {
	opts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(log)}
	if cfg.ScriptsDir == "" {
		opts = append(opts, runtime.WithRuntimeFS(scripts.FS))
	}
	rt := runtime.NewRuntime(cfg.ScriptsDir, opts...)
	return refsync.ExtCollector{
		".toml": manifest.Collector{},
		".go":   runtime.NewScriptCollector(rt),
	}
}

// openEngine opens the engine on the configured database. With mustExist
// a missing database is an error instead of being created.
func openEngine(mustExist bool) (*refsync.Engine, error) {
	dbPath := resolveDBPath(repoRoot())
	if mustExist {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found: %s (run 'refsync sync' first)", dbPath)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts := []refsync.Option{
		refsync.WithParallel(settings.Parallel),
		refsync.WithLogger(logger),
	}
	if settings.Workers > 0 {
		opts = append(opts, refsync.WithWorkers(settings.Workers))
	}
	e, err := refsync.New(dbPath, newCollector(settings, logger), opts...)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	return e, nil
}

// repoRoot returns the repository root above the working directory.
func repoRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return findRepoRoot(cwd)
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag, the config
// file, or the default, anchored at repoRoot when relative.
func resolveDBPath(root string) string {
	path := flagDB
	if path == "" && settings != nil {
		path = settings.DBPath
	}
	if path == "" {
		path = config.DefaultConfig().DBPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
