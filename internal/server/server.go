// Package server holds build metadata for the portal binaries.
package server

import "fmt"

// Build metadata, set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Name is the product name reported by the binaries.
const Name = "solar-portal"

// VersionString renders the build metadata for -version output.
func VersionString() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name, Version, Commit, Date)
}
