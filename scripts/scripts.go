// Package scripts embeds the Risor collector scripts.
package scripts

import "embed"

// FS holds collect/<language>.risor.
//
//go:embed collect/*.risor
var FS embed.FS
