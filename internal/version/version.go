// Package version holds build information set at link time with
// -ldflags "-X github.com/banshee-data/paramstudy/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the one-line build description printed by `paramstudy version`.
func String() string {
	return fmt.Sprintf("paramstudy %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
