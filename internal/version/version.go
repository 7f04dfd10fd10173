// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/triage/internal/version.Version=v0.3.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build for logs and the health endpoint.
func String() string {
	return fmt.Sprintf("triage %s (%s, built %s)", Version, Commit, Date)
}
