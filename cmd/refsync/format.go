package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
)

// formatDeclarationsText formats CLIDeclaration results as aligned columns.
func formatDeclarationsText(w io.Writer, decls []CLIDeclaration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tTYPE\tSOURCE\tREFS")
	for _, d := range decls {
		source := d.Library
		if d.User {
			source = d.Project + "/" + d.Module
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", d.ID, d.Name, d.Kind, d.Type, source, d.RefCount)
	}
	tw.Flush()
}

// formatLibrariesText formats CLILibrary results as aligned columns.
func formatLibrariesText(w io.Writer, libs []CLILibrary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDECLARATIONS\tPATH")
	for _, l := range libs {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", l.Name, l.Declarations, l.Path)
	}
	tw.Flush()
}

// formatLocationsText formats locations as "project/module:line:col name".
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s/%s:%d:%d\t%s\n", loc.Project, loc.Module, loc.StartLine, loc.StartCol, loc.Name)
	}
}

// formatInspectionsText formats findings one per line, compiler style.
func formatInspectionsText(w io.Writer, results []CLIInspection) {
	for _, r := range results {
		loc := r.Location
		fmt.Fprintf(w, "%s/%s:%d:%d: %s [%s]\n", loc.Project, loc.Module, loc.StartLine, loc.StartCol, r.Description, r.Check)
	}
}

// formatPrioritiesText lists each library with its project priorities,
// sorted by project ID.
func formatPrioritiesText(w io.Writer, prios []CLIPriorityMap) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LIBRARY\tLOADED\tPROJECTS")
	for _, m := range prios {
		var parts []string
		for _, p := range slices.Sorted(maps.Keys(m.Priorities)) {
			parts = append(parts, fmt.Sprintf("%s=%d", p, m.Priorities[p]))
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", m.Identity, m.Loaded, strings.Join(parts, " "))
	}
	tw.Flush()
}

// formatSyncText formats a sync summary as readable text.
func formatSyncText(w io.Writer, res CLISyncResult) {
	fmt.Fprintf(w, "Pass %s (%dms)\n", res.PassID, res.DurationMS)
	if res.Cancelled {
		fmt.Fprintln(w, "Cancelled before completion")
	}
	for _, id := range res.Loaded {
		fmt.Fprintf(w, "  loaded    %s\n", id)
	}
	for _, id := range res.Unloaded {
		fmt.Fprintf(w, "  unloaded  %s\n", id)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  failed    %s: %s\n", f.Identity, f.Error)
	}
	fmt.Fprintf(w, "Modules: %d stored, %d removed, %d rebound\n", res.Modules, res.RemovedModules, res.AffectedModules)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIDeclaration:
		formatDeclarationsText(w, v)
	case CLIDeclaration:
		formatDeclarationsText(w, []CLIDeclaration{v})
	case []CLILibrary:
		formatLibrariesText(w, v)
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLIInspection:
		formatInspectionsText(w, v)
	case []CLIPriorityMap:
		formatPrioritiesText(w, v)
	case CLISyncResult:
		formatSyncText(w, v)
	case nil:
		// No output for nil results (e.g., resolve with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIDeclaration:
		return len(r)
	case []CLILibrary:
		return len(r)
	case []CLILocation:
		return len(r)
	case []CLIInspection:
		return len(r)
	case []CLIPriorityMap:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
