// Package version provides build information for macrosync.
package version

import "fmt"

// Set at build time with -ldflags "-X github.com/pandeptwidyaop/macrosync/internal/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info returns version information as a map
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}

// String renders the one-line form printed by the CLI.
func String() string {
	return fmt.Sprintf("macrosync %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
