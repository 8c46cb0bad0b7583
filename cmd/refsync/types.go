package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIDeclaration is a JSON-friendly declaration representation.
type CLIDeclaration struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	Library   string `json:"library,omitempty"`
	Project   string `json:"project,omitempty"`
	Module    string `json:"module,omitempty"`
	Object    bool   `json:"object,omitempty"`
	Global    bool   `json:"global,omitempty"`
	User      bool   `json:"user,omitempty"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	RefCount  int    `json:"ref_count"`
}

// CLILibrary is a JSON-friendly loaded library.
type CLILibrary struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Path         string `json:"path,omitempty"`
	Hash         string `json:"hash"`
	Declarations int    `json:"declarations"`
	LoadedAt     string `json:"loaded_at"`
}

// CLILocation is a position range inside a user module.
type CLILocation struct {
	Project       string `json:"project"`
	Module        string `json:"module"`
	StartLine     int    `json:"start_line"`
	StartCol      int    `json:"start_col"`
	EndLine       int    `json:"end_line"`
	EndCol        int    `json:"end_col"`
	Name          string `json:"name,omitempty"`
	DeclarationID *int64 `json:"declaration_id,omitempty"`
}

// CLIPriorityMap is a JSON-friendly priority map.
type CLIPriorityMap struct {
	Identity   string         `json:"identity"`
	Name       string         `json:"name"`
	Path       string         `json:"path,omitempty"`
	Loaded     bool           `json:"loaded"`
	Priorities map[string]int `json:"priorities"`
}

// CLIFailure is one library that could not be loaded.
type CLIFailure struct {
	Identity  string `json:"identity"`
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

// CLISyncResult summarizes a sync run.
type CLISyncResult struct {
	PassID          string       `json:"pass_id"`
	Loaded          []string     `json:"loaded"`
	Unloaded        []string     `json:"unloaded"`
	Failed          []CLIFailure `json:"failed"`
	Modules         int          `json:"modules"`
	RemovedModules  int          `json:"removed_modules"`
	AffectedModules int          `json:"affected_modules"`
	Cancelled       bool         `json:"cancelled,omitempty"`
	DurationMS      int64        `json:"duration_ms"`
}

// CLIInspection is one inspection finding.
type CLIInspection struct {
	Check       string      `json:"check"`
	Description string      `json:"description"`
	Location    CLILocation `json:"location"`
}
