package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/refsync"
)

var (
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string

	flagKind    string
	flagLibrary string
	flagProject string
	flagParent  int64
	flagUser    bool
	flagGlobal  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the declaration graph",
	Long:  "Run read-only queries against a synchronized database. Line and column numbers are those the parser reported.",
}

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List loaded libraries",
	Args:  cobra.NoArgs,
	RunE:  runLibraries,
}

var declarationsCmd = &cobra.Command{
	Use:   "declarations",
	Short: "List declarations with optional filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, "declarations", "")
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search declarations by name ('*' is a wildcard)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, "search", args[0])
	},
}

var referencesCmd = &cobra.Command{
	Use:   "references <declaration-id>",
	Short: "List the use-sites bound to a declaration",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferences,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <project-id> <name>",
	Short: "Resolve a global name as the project sees it",
	Args:  cobra.ExactArgs(2),
	RunE:  runResolve,
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List references bound to nothing",
	Args:  cobra.NoArgs,
	RunE:  runUnresolved,
}

var prioritiesCmd = &cobra.Command{
	Use:   "priorities",
	Short: "Show each library's per-project reference priority",
	Args:  cobra.NoArgs,
	RunE:  runPriorities,
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: name|kind|library|ref_count")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")

	for _, c := range []*cobra.Command{declarationsCmd, searchCmd} {
		c.Flags().StringVar(&flagKind, "kind", "", "filter by declaration kind (e.g. class, constant)")
		c.Flags().StringVar(&flagLibrary, "library", "", "filter by library identity")
		c.Flags().StringVar(&flagProject, "project", "", "filter by project ID (user source only)")
		c.Flags().Int64Var(&flagParent, "parent", 0, "only direct members of this declaration ID")
		c.Flags().BoolVar(&flagUser, "user", false, "only user-authored declarations")
		c.Flags().BoolVar(&flagGlobal, "global", false, "only globally visible declarations")
	}

	queryCmd.AddCommand(librariesCmd)
	queryCmd.AddCommand(declarationsCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(resolveCmd)
	queryCmd.AddCommand(unresolvedCmd)
	queryCmd.AddCommand(prioritiesCmd)
}

func runLibraries(cmd *cobra.Command, args []string) error {
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, "libraries", err)
	}
	defer e.Close()

	libs, err := e.Query().Libraries()
	if err != nil {
		return outputError(cmd, "libraries", err)
	}
	out := make([]CLILibrary, 0, len(libs))
	for _, l := range libs {
		n, err := e.Store().LibraryDeclarationCount(l.ID)
		if err != nil {
			return outputError(cmd, "libraries", err)
		}
		out = append(out, CLILibrary{
			Identity:     l.Identity,
			Name:         l.Name,
			Path:         l.Path,
			Hash:         l.Hash,
			Declarations: n,
			LoadedAt:     l.LoadedAt.UTC().Format(time.RFC3339),
		})
	}
	total := len(out)
	return outputResult(cmd, CLIResult{Command: "libraries", Results: out, TotalCount: &total})
}

func runSearch(cmd *cobra.Command, command, pattern string) error {
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, command, err)
	}
	defer e.Close()

	res, err := e.Query().SearchDeclarations(pattern, buildFilter(), buildSort(), buildPagination())
	if err != nil {
		return outputError(cmd, command, err)
	}
	out := make([]CLIDeclaration, 0, len(res.Items))
	for _, d := range res.Items {
		out = append(out, declarationResultToCLI(d))
	}
	return outputResult(cmd, CLIResult{Command: command, Results: out, TotalCount: &res.TotalCount})
}

func runReferences(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return outputError(cmd, "references", fmt.Errorf("invalid declaration ID %q: must be a positive integer", args[0]))
	}
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, "references", err)
	}
	defer e.Close()

	q := e.Query()
	decl, err := q.Declaration(id)
	if err != nil {
		return outputError(cmd, "references", err)
	}
	if decl == nil {
		return outputError(cmd, "references", fmt.Errorf("declaration %d not found", id))
	}
	locs, err := q.ReferencesTo(id)
	if err != nil {
		return outputError(cmd, "references", err)
	}
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationToCLI(l, decl.Name, &id))
	}
	total := len(out)
	return outputResult(cmd, CLIResult{Command: "references", Results: out, TotalCount: &total})
}

func runResolve(cmd *cobra.Command, args []string) error {
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, "resolve", err)
	}
	defer e.Close()

	d, err := e.Query().ResolveGlobal(args[0], args[1])
	if err != nil {
		return outputError(cmd, "resolve", err)
	}
	if d == nil {
		return outputResult(cmd, CLIResult{Command: "resolve", Results: nil})
	}
	locs, err := e.Query().ReferencesTo(d.ID)
	if err != nil {
		return outputError(cmd, "resolve", err)
	}
	return outputResult(cmd, CLIResult{Command: "resolve", Results: declarationToCLI(d, libraryOf(d), len(locs))})
}

func runUnresolved(cmd *cobra.Command, args []string) error {
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, "unresolved", err)
	}
	defer e.Close()

	refs, err := e.Query().UnresolvedReferences()
	if err != nil {
		return outputError(cmd, "unresolved", err)
	}
	out := make([]CLILocation, 0, len(refs))
	for _, r := range refs {
		out = append(out, locationToCLI(refsync.ReferenceLocation(r), r.Name, nil))
	}
	total := len(out)
	return outputResult(cmd, CLIResult{Command: "unresolved", Results: out, TotalCount: &total})
}

func runPriorities(cmd *cobra.Command, args []string) error {
	e, err := openEngine(true)
	if err != nil {
		return outputError(cmd, "priorities", err)
	}
	defer e.Close()

	maps := e.ProjectReferences()
	out := make([]CLIPriorityMap, 0, len(maps))
	for _, m := range maps {
		out = append(out, CLIPriorityMap{
			Identity:   m.Identity,
			Name:       m.Reference.Name,
			Path:       m.Reference.FullPath,
			Loaded:     m.IsLoaded,
			Priorities: m.Priorities,
		})
	}
	total := len(out)
	return outputResult(cmd, CLIResult{Command: "priorities", Results: out, TotalCount: &total})
}

// --- Helpers ---

// buildFilter creates a DeclarationFilter from CLI flags.
func buildFilter() refsync.DeclarationFilter {
	var f refsync.DeclarationFilter
	if flagKind != "" {
		f.Kinds = []string{flagKind}
	}
	if flagLibrary != "" {
		lib := flagLibrary
		f.Library = &lib
	}
	if flagProject != "" {
		p := flagProject
		f.ProjectID = &p
	}
	if flagParent > 0 {
		parent := flagParent
		f.ParentID = &parent
	}
	f.UserOnly = flagUser
	f.GlobalOnly = flagGlobal
	return f
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() refsync.Pagination {
	return refsync.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() refsync.Sort {
	var field refsync.SortField
	switch flagSort {
	case "kind":
		field = refsync.SortByKind
	case "library":
		field = refsync.SortByLibrary
	case "ref_count":
		field = refsync.SortByRefCount
	default:
		field = refsync.SortByName
	}

	var order refsync.SortOrder
	switch flagOrder {
	case "desc":
		order = refsync.Desc
	default:
		order = refsync.Asc
	}

	return refsync.Sort{Field: field, Order: order}
}

// libraryOf returns the identity of the library that contributed d.
// Library declarations carry it as their project ID.
func libraryOf(d *refsync.GraphDeclaration) string {
	if d.LibraryID == nil {
		return ""
	}
	return d.ProjectID
}

func declarationToCLI(d *refsync.GraphDeclaration, library string, refCount int) CLIDeclaration {
	out := CLIDeclaration{
		ID:        d.ID,
		Name:      d.Name,
		Kind:      d.Kind,
		Type:      d.TypeName,
		Library:   library,
		Object:    d.IsObjectType,
		Global:    d.IsGlobal,
		User:      d.IsUserDefined,
		ParentID:  d.ParentDeclarationID,
		StartLine: d.StartLine,
		RefCount:  refCount,
	}
	if d.IsUserDefined {
		out.Project = d.ProjectID
		out.Module = d.Module
	}
	return out
}

func declarationResultToCLI(dr refsync.DeclarationResult) CLIDeclaration {
	return declarationToCLI(&dr.Declaration, dr.Library, dr.RefCount)
}

func locationToCLI(loc refsync.Location, name string, declID *int64) CLILocation {
	return CLILocation{
		Project:       loc.ProjectID,
		Module:        loc.Module,
		StartLine:     loc.StartLine,
		StartCol:      loc.StartCol,
		EndLine:       loc.EndLine,
		EndCol:        loc.EndCol,
		Name:          name,
		DeclarationID: declID,
	}
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}
