package version

import "fmt"

var (
	// Version is the release of the tool. Overridden via ldflags.
	Version = "1.0.0"
	// Commit is the short git SHA of the build.
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Full returns the version with commit and build time.
func Full() string {
	return fmt.Sprintf("repoupdate %s (commit %s, built %s)", Version, Commit, BuildTime)
}
